package decode

import "fmt"

// Entry 记录中的一个字段
type Entry struct {
	Name  string
	Value any
}

// Record 有序的字段名->值序列。嵌套循环组的值为 []Record。
// 每帧解码新建，调用方独占，无共享或回引。
type Record []Entry

// Get 按名查找（线性扫描；单帧字段数量小）
func (r Record) Get(name string) (any, bool) {
	for _, e := range r {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Append 追加一个字段
func (r *Record) Append(name string, value any) {
	*r = append(*r, Entry{Name: name, Value: value})
}

// EnumValue 枚举映射后的值：保留原始整数与显示名
type EnumValue struct {
	Value int64
	Name  string
}

// Raw 返回原始整数（条件表达式等数值比较使用）
func (ev EnumValue) Raw() int64 { return ev.Value }

func (ev EnumValue) String() string {
	return fmt.Sprintf("%d (%s)", ev.Value, ev.Name)
}

// Measurement 带单位的数值
type Measurement struct {
	Value float64
	Unit  string
}

func (m Measurement) String() string {
	return fmt.Sprintf("%g %s", m.Value, m.Unit)
}

// Float64 返回数值部分（条件表达式等数值比较使用）
func (m Measurement) Float64() float64 { return m.Value }

// Scope 已解码字段的作用域链。循环组每轮迭代创建子作用域：
// 继承外层可读，本轮新增仅对本轮与更深层可见，兄弟迭代互不可见。
type Scope struct {
	parent *Scope
	vals   map[string]any
}

// NewScope 创建子作用域；parent 为 nil 表示根作用域
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vals: make(map[string]any)}
}

// Bind 在当前作用域绑定名字
func (s *Scope) Bind(name string, v any) {
	if name != "" {
		s.vals[name] = v
	}
}

// Lookup 沿作用域链向外查找
func (s *Scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

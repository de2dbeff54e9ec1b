// Package schema 协议描述数据模型：类型/枚举注册表、命令字段布局、头部布局。
// 配置加载完成后整棵结构只读，可在并发解码间安全共享。
package schema

// 端序标记
const (
	EndianLittle = "LE"
	EndianBig    = "BE"
)

// 基础类型种类（由类型名在加载时解析为封闭集合，解码阶段不再做字符串比较）
type BaseKind int

const (
	KindUint BaseKind = iota // 无符号整数
	KindInt                  // 有符号整数
	KindStr                  // 文本（按 encoding 解码）
	KindHex                  // 原始字节的十六进制展示
	KindBCD                  // BCD 压缩十进制
	KindCP56Time             // 7字节 CP56Time2a 时间
	KindBinaryStr            // 按位 0/1 展示
	KindBitset               // 逐位布尔集合
	KindBitfield             // 命名位段组
)

// String 返回配置词汇表中的类型名
func (k BaseKind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindHex:
		return "hex"
	case KindBCD:
		return "bcd"
	case KindCP56Time:
		return "time.cp56time2a"
	case KindBinaryStr:
		return "binary_str"
	case KindBitset:
		return "bitset"
	case KindBitfield:
		return "bitfield"
	}
	return "unknown"
}

// Meta 协议元数据
type Meta struct {
	Protocol      string
	Version       int
	DefaultEndian string // LE/BE
	Notes         string
}

// TypeDef 标量类型定义。注册后不可变。
type TypeDef struct {
	Name     string
	Base     BaseKind
	Bytes    int    // 字节宽度；0 表示由字段在解码时确定
	Signed   bool   // 仅 int/uint 有意义
	Encoding string // 仅 str 有意义，默认 ASCII
	BitNames []string
	Order    string // bitfield 位序 lsb0/msb0，默认 lsb0
}

// EnumDef 枚举定义：整数值到显示名的映射
type EnumDef struct {
	Name   string
	Values map[int64]string
}

// 字段种类标签
type FieldKind int

const (
	FieldScalar      FieldKind = iota // 普通标量字段
	FieldConstRepeat                  // 固定次数循环组
	FieldValueRepeat                  // 按字段值循环组
	FieldBitGroup                     // 位段组
)

// BitGroup 位段组内的一个命名位区间 [StartBit, StartBit+Width)
type BitGroup struct {
	Name     string
	StartBit int
	Width    int
	Enum     string
}

// FieldSpec 命令布局中的一个节点。Kind 决定哪些字段有效：
//   - FieldScalar: Name/Type/Len 以及可选的 ID/Scale/ValueOffset/Unit/Enum/
//     Endian/When/LenBy/ToEnd
//   - FieldConstRepeat: RepeatConst + Children
//   - FieldValueRepeat: RepeatBy + Children
//   - FieldBitGroup: Name/Len/BitOrder/Flatten/BitGroups
//
// 循环组按值持有子节点，配置树有限无环、加载后只读。
type FieldSpec struct {
	Kind FieldKind

	Name        string
	ID          string // 供后续字段按引用名查找
	Type        string
	Len         int      // 字节长度；0 须配合 LenBy 或 ToEnd
	Scale       *float64 // 数值缩放，解码后应用
	ValueOffset *float64 // 数值偏移，先于 Scale 应用
	Unit        string
	Enum        string
	Endian      string // 覆盖协议默认端序
	When        *Expr  // 条件表达式，加载时编译
	WhenSrc     string // 原始表达式文本（报错与校验用）
	LenBy       string // 从先前字段取字节长度
	ToEnd       bool   // 消费到缓冲区末尾

	RepeatConst int
	RepeatBy    string
	Children    []FieldSpec

	BitOrder  string // lsb0/msb0
	Flatten   bool
	BitGroups []BitGroup

	// 加载阶段解析出的类型定义，解码阶段直接使用
	TypeDef *TypeDef
}

// HeadField 头部字段定义。头部按绝对偏移寻址，而非顺序紧排。
type HeadField struct {
	Name       string
	Offset     int
	Length     int
	Endian     string // LE/BE（加载时归一），空取协议默认
	Type       string // uint/const/hex/ascii
	ConstValue *uint64
	Required   bool
	IsCmd      bool // 命令ID来源字段（每协议恰好一个）
}

// CmdFilter 命令过滤集合。Include 与 Exclude 互斥，加载时校验。
type CmdFilter struct {
	Include map[int64]struct{}
	Exclude map[int64]struct{}
}

// Allow 判断命令是否应被解析
func (f CmdFilter) Allow(cmd int64) bool {
	if len(f.Include) > 0 {
		_, ok := f.Include[cmd]
		return ok
	}
	if len(f.Exclude) > 0 {
		_, ok := f.Exclude[cmd]
		return !ok
	}
	return true
}

// Protocol 完整协议描述。加载一次后只读。
type Protocol struct {
	Meta       Meta
	Types      *TypeRegistry
	Enums      *EnumRegistry
	HeadLen    int
	TailLen    int
	FrameHead  string // 帧头字节样式，如 "AA F5"
	HeadFields []HeadField
	Cmds       map[int64][]FieldSpec
	Filter     CmdFilter
}

// CmdLayout 返回命令的字段布局，不存在时返回 false
func (p *Protocol) CmdLayout(cmd int64) ([]FieldSpec, bool) {
	layout, ok := p.Cmds[cmd]
	return layout, ok
}

// CmdIDs 返回已注册的命令ID列表（无序）
func (p *Protocol) CmdIDs() []int64 {
	ids := make([]int64, 0, len(p.Cmds))
	for id := range p.Cmds {
		ids = append(ids, id)
	}
	return ids
}

package schema

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateType = errors.New("duplicate type")
	ErrUnknownType   = errors.New("unknown type")
	ErrDuplicateEnum = errors.New("duplicate enum")
)

// TypeRegistry 命名标量类型注册表。加载阶段写入，之后只读。
type TypeRegistry struct {
	types map[string]*TypeDef
}

// NewTypeRegistry 创建空注册表
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]*TypeDef)}
}

// Register 注册类型定义，重名返回 ErrDuplicateType
func (r *TypeRegistry) Register(name string, td *TypeDef) error {
	if _, ok := r.types[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateType, name)
	}
	td.Name = name
	r.types[name] = td
	return nil
}

// Resolve 按名称查找类型，未注册返回 ErrUnknownType
func (r *TypeRegistry) Resolve(name string) (*TypeDef, error) {
	td, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return td, nil
}

// Len 已注册类型数量
func (r *TypeRegistry) Len() int { return len(r.types) }

// EnumRegistry 枚举表注册表
type EnumRegistry struct {
	enums map[string]*EnumDef
}

// NewEnumRegistry 创建空注册表
func NewEnumRegistry() *EnumRegistry {
	return &EnumRegistry{enums: make(map[string]*EnumDef)}
}

// Register 注册枚举表，重名返回 ErrDuplicateEnum
func (r *EnumRegistry) Register(name string, values map[int64]string) error {
	if _, ok := r.enums[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEnum, name)
	}
	r.enums[name] = &EnumDef{Name: name, Values: values}
	return nil
}

// Has 判断枚举表是否存在
func (r *EnumRegistry) Has(name string) bool {
	_, ok := r.enums[name]
	return ok
}

// Lookup 查找枚举显示名。枚举表不存在或值未定义时返回 false；
// 设备固件可能上报未文档化的取值，调用方应回退为原始整数而非报错。
func (r *EnumRegistry) Lookup(name string, value int64) (string, bool) {
	ed, ok := r.enums[name]
	if !ok {
		return "", false
	}
	label, ok := ed.Values[value]
	return label, ok
}

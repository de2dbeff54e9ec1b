package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSchema 配置结构性校验失败。配置有误的协议不允许用于解码。
var ErrInvalidSchema = errors.New("invalid protocol schema")

// Validate 在加载末尾做一次全量结构校验：重复字段ID、悬空/前向引用、
// 位区间重叠、include/exclude 同时设置等。任何一项失败都中止加载。
func Validate(p *Protocol) error {
	var problems []string

	if p.Meta.Protocol == "" {
		problems = append(problems, "meta.protocol is required")
	}
	if e := p.Meta.DefaultEndian; e != "" && e != EndianLittle && e != EndianBig {
		problems = append(problems, fmt.Sprintf("meta.default_endian %q must be LE or BE", e))
	}
	if len(p.Filter.Include) > 0 && len(p.Filter.Exclude) > 0 {
		problems = append(problems, "filter: include and exclude are mutually exclusive")
	}

	problems = append(problems, validateHeadFields(p)...)

	for cmd, fields := range p.Cmds {
		ctx := fmt.Sprintf("cmd%d", cmd)
		scope := newNameSet()
		// 头部字段在载荷解码前进入作用域
		for _, hf := range p.HeadFields {
			scope.add(hf.Name)
		}
		problems = append(problems, validateFields(fields, p, ctx, scope)...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalidSchema, strings.Join(problems, "\n  "))
	}
	return nil
}

// nameSet 记录按文档顺序已声明、当前作用域链可见的字段名
type nameSet struct {
	names map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{names: make(map[string]struct{})}
}

func (s *nameSet) add(name string) {
	if name != "" {
		s.names[name] = struct{}{}
	}
}

func (s *nameSet) has(name string) bool {
	_, ok := s.names[name]
	return ok
}

func (s *nameSet) clone() *nameSet {
	c := newNameSet()
	for name := range s.names {
		c.names[name] = struct{}{}
	}
	return c
}

func validateFields(fields []FieldSpec, p *Protocol, ctx string, scope *nameSet) []string {
	var problems []string
	ids := make(map[string]struct{})

	for i, f := range fields {
		where := fmt.Sprintf("%s[%d]", ctx, i)
		switch f.Kind {
		case FieldScalar:
			problems = append(problems, validateScalar(&f, p, where, scope, ids)...)
			scope.add(f.Name)
			scope.add(f.ID)

		case FieldBitGroup:
			problems = append(problems, validateBitGroup(&f, p, where)...)
			scope.add(f.Name)
			scope.add(f.ID)
			// 展平时成员名进入父作用域
			for _, bg := range f.BitGroups {
				if f.Flatten {
					scope.add(bg.Name)
				}
			}

		case FieldConstRepeat:
			if f.RepeatConst < 0 {
				problems = append(problems, fmt.Sprintf("%s: repeat_const %d is negative", where, f.RepeatConst))
			}
			// 子作用域继承外层；组内新字段对后续兄弟不可见
			problems = append(problems, validateFields(f.Children, p, where+".group", scope.clone())...)

		case FieldValueRepeat:
			if !scope.has(f.RepeatBy) {
				problems = append(problems, fmt.Sprintf("%s: repeat_by references unknown or later field %q", where, f.RepeatBy))
			}
			problems = append(problems, validateFields(f.Children, p, where+".group", scope.clone())...)
		}
	}
	return problems
}

func validateScalar(f *FieldSpec, p *Protocol, where string, scope *nameSet, ids map[string]struct{}) []string {
	var problems []string

	if f.Name == "" {
		problems = append(problems, fmt.Sprintf("%s: field name is required", where))
	}
	if f.ID != "" {
		if _, dup := ids[f.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate field id %q", where, f.ID))
		}
		ids[f.ID] = struct{}{}
	}

	// 长度来源三选一：显式 len、len_by 引用、consume_to_end
	sources := 0
	if f.Len > 0 {
		sources++
	}
	if f.LenBy != "" {
		sources++
	}
	if f.ToEnd {
		sources++
	}
	switch {
	case f.Len < 0:
		problems = append(problems, fmt.Sprintf("%s: field %q has negative len", where, f.Name))
	case sources == 0:
		problems = append(problems, fmt.Sprintf("%s: field %q needs len, len_by or consume_to_end", where, f.Name))
	case sources > 1:
		problems = append(problems, fmt.Sprintf("%s: field %q mixes len/len_by/consume_to_end", where, f.Name))
	}

	if f.LenBy != "" && !scope.has(f.LenBy) {
		problems = append(problems, fmt.Sprintf("%s: len_by references unknown or later field %q", where, f.LenBy))
	}
	if f.Enum != "" && !p.Enums.Has(f.Enum) {
		problems = append(problems, fmt.Sprintf("%s: field %q references unknown enum %q", where, f.Name, f.Enum))
	}
	// 缩放后的浮点数无法再做枚举映射，两者组合视为配置矛盾
	if f.Enum != "" && (f.Scale != nil || f.ValueOffset != nil) {
		problems = append(problems, fmt.Sprintf("%s: field %q mixes scale/value_offset with enum", where, f.Name))
	}
	if f.Endian != "" && f.Endian != EndianLittle && f.Endian != EndianBig {
		problems = append(problems, fmt.Sprintf("%s: field %q has bad endian %q", where, f.Name, f.Endian))
	}
	if f.When != nil {
		for _, ref := range f.When.Refs() {
			if !scope.has(ref) {
				problems = append(problems, fmt.Sprintf("%s: when %q references unknown or later field %q", where, f.WhenSrc, ref))
			}
		}
	}

	// 定宽类型与字段声明长度必须一致
	if td := f.TypeDef; td != nil && td.Bytes > 0 && f.Len > 0 && f.Len != td.Bytes {
		problems = append(problems, fmt.Sprintf("%s: field %q len %d conflicts with type %q width %d",
			where, f.Name, f.Len, td.Name, td.Bytes))
	}
	return problems
}

func validateBitGroup(f *FieldSpec, p *Protocol, where string) []string {
	var problems []string

	switch f.Len {
	case 1, 2, 4, 8:
	default:
		problems = append(problems, fmt.Sprintf("%s: bitfield %q len must be 1/2/4/8, got %d", where, f.Name, f.Len))
	}
	if f.BitOrder != "lsb0" && f.BitOrder != "msb0" {
		problems = append(problems, fmt.Sprintf("%s: bitfield %q has bad bit_order %q", where, f.Name, f.BitOrder))
	}

	totalBits := f.Len * 8
	type span struct{ lo, hi int }
	var spans []span
	for _, bg := range f.BitGroups {
		if bg.Width <= 0 {
			problems = append(problems, fmt.Sprintf("%s: bit group %q width must be positive", where, bg.Name))
			continue
		}
		if bg.StartBit < 0 || totalBits > 0 && bg.StartBit+bg.Width > totalBits {
			problems = append(problems, fmt.Sprintf("%s: bit group %q range [%d,%d) exceeds %d bits",
				where, bg.Name, bg.StartBit, bg.StartBit+bg.Width, totalBits))
		}
		if bg.Enum != "" && !p.Enums.Has(bg.Enum) {
			problems = append(problems, fmt.Sprintf("%s: bit group %q references unknown enum %q", where, bg.Name, bg.Enum))
		}
		cur := span{lo: bg.StartBit, hi: bg.StartBit + bg.Width}
		for _, prev := range spans {
			if cur.lo < prev.hi && prev.lo < cur.hi {
				problems = append(problems, fmt.Sprintf("%s: bit group %q overlaps range [%d,%d)",
					where, bg.Name, prev.lo, prev.hi))
			}
		}
		spans = append(spans, cur)
	}
	return problems
}

func validateHeadFields(p *Protocol) []string {
	var problems []string
	cmdSources := 0

	// 无 head_len 则越界检查无从谈起，解码期必然切片越界
	if len(p.HeadFields) > 0 && p.HeadLen <= 0 {
		problems = append(problems, "compatibility: head_fields require positive head_len")
	}

	for i, hf := range p.HeadFields {
		where := fmt.Sprintf("head_fields[%d]", i)
		if hf.Name == "" {
			problems = append(problems, where+": name is required")
		}
		if hf.Length <= 0 {
			problems = append(problems, fmt.Sprintf("%s: field %q has non-positive length", where, hf.Name))
		}
		if hf.Offset < 0 {
			problems = append(problems, fmt.Sprintf("%s: field %q has negative offset", where, hf.Name))
		}
		if p.HeadLen > 0 && hf.Offset+hf.Length > p.HeadLen {
			problems = append(problems, fmt.Sprintf("%s: field %q exceeds head_len %d", where, hf.Name, p.HeadLen))
		}
		switch hf.Type {
		case "uint", "const", "hex", "ascii":
		default:
			problems = append(problems, fmt.Sprintf("%s: field %q has unsupported type %q", where, hf.Name, hf.Type))
		}
		if hf.Type == "const" && hf.ConstValue == nil {
			problems = append(problems, fmt.Sprintf("%s: const field %q requires const_value", where, hf.Name))
		}
		if hf.IsCmd {
			cmdSources++
			if hf.Type != "uint" && hf.Type != "const" {
				problems = append(problems, fmt.Sprintf("%s: command id field %q must be numeric", where, hf.Name))
			}
		}
	}

	if len(p.HeadFields) > 0 && cmdSources != 1 {
		problems = append(problems, fmt.Sprintf("head_fields: exactly one is_cmd field required, got %d", cmdSources))
	}
	return problems
}

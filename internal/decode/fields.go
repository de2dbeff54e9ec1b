package decode

import (
	"errors"
	"fmt"
	"math"

	"github.com/lanford-code/cdzparse/internal/schema"
)

// Interpreter 字段布局解释器。持有只读协议描述，可并发使用。
type Interpreter struct {
	proto *schema.Protocol
}

// NewInterpreter 创建解释器
func NewInterpreter(p *schema.Protocol) *Interpreter {
	return &Interpreter{proto: p}
}

// DecodeFields 按文档顺序解码字段列表，返回记录与消耗的总字节数。
// sc 为已解码字段的作用域（载荷解码前已注入头部字段）。
// 任一字段失败即中止整帧，不产生部分记录。
func (it *Interpreter) DecodeFields(buf []byte, off int, fields []schema.FieldSpec, sc *Scope) (Record, int, error) {
	rec := make(Record, 0, len(fields))
	start := off

	for i := range fields {
		f := &fields[i]
		var err error
		switch f.Kind {
		case schema.FieldScalar:
			off, err = it.decodeScalarField(buf, off, f, sc, &rec)
		case schema.FieldBitGroup:
			off, err = it.decodeBitGroupField(buf, off, f, sc, &rec)
		case schema.FieldConstRepeat:
			off, err = it.decodeRepeat(buf, off, f, f.RepeatConst, sc, &rec)
		case schema.FieldValueRepeat:
			var count int
			count, err = it.resolveRepeatCount(f, sc)
			if err == nil {
				off, err = it.decodeRepeat(buf, off, f, count, sc, &rec)
			}
		}
		if err != nil {
			return nil, 0, err
		}
	}
	return rec, off - start, nil
}

func (it *Interpreter) decodeScalarField(buf []byte, off int, f *schema.FieldSpec, sc *Scope, rec *Record) (int, error) {
	if f.When != nil {
		ok, err := f.When.Eval(sc.Lookup)
		if err != nil {
			if errors.Is(err, schema.ErrUnboundName) {
				return 0, fmt.Errorf("%w: when %q: %v", ErrMissingReference, f.WhenSrc, err)
			}
			return 0, fmt.Errorf("field %q when %q: %w", f.Name, f.WhenSrc, err)
		}
		if !ok {
			// 条件为假：不消耗字节也不输出
			return off, nil
		}
	}

	length, err := it.resolveLength(buf, off, f, sc)
	if err != nil {
		return 0, err
	}

	raw, consumed, err := DecodeScalar(buf, off, f.TypeDef, length, it.endianFor(f.Endian))
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", f.Name, err)
	}

	value := it.postProcess(raw, f)
	rec.Append(f.Name, value)
	sc.Bind(f.Name, value)
	sc.Bind(f.ID, value)
	return off + consumed, nil
}

// postProcess 数值后处理：先加 value_offset 再乘 scale（顺序固定），
// 之后做枚举映射，带单位的数值包装为 Measurement。
func (it *Interpreter) postProcess(raw any, f *schema.FieldSpec) any {
	value := raw

	if f.Scale != nil || f.ValueOffset != nil {
		if num, ok := schema.NumericValue(raw); ok {
			if f.ValueOffset != nil {
				num += *f.ValueOffset
			}
			if f.Scale != nil {
				num *= *f.Scale
			}
			if f.Unit != "" {
				value = Measurement{Value: num, Unit: f.Unit}
			} else {
				value = num
			}
			return value
		}
	}

	if f.Enum != "" {
		if rawInt, ok := asInt64(raw); ok {
			if label, ok := it.proto.Enums.Lookup(f.Enum, rawInt); ok {
				return EnumValue{Value: rawInt, Name: label}
			}
		}
	}
	if f.Unit != "" {
		if num, ok := schema.NumericValue(raw); ok {
			return Measurement{Value: num, Unit: f.Unit}
		}
	}
	return value
}

func (it *Interpreter) decodeBitGroupField(buf []byte, off int, f *schema.FieldSpec, sc *Scope, rec *Record) (int, error) {
	groups, consumed, err := DecodeBitGroups(buf, off, f.Len, it.endianFor(f.Endian), f.BitOrder, f.BitGroups, it.proto.Enums)
	if err != nil {
		return 0, fmt.Errorf("bitfield %q: %w", f.Name, err)
	}
	if f.Flatten {
		// 成员直接并入父记录并进入作用域
		for _, e := range groups {
			rec.Append(e.Name, e.Value)
			sc.Bind(e.Name, e.Value)
		}
	} else {
		rec.Append(f.Name, groups)
		sc.Bind(f.Name, groups)
		sc.Bind(f.ID, groups)
	}
	return off + consumed, nil
}

func (it *Interpreter) decodeRepeat(buf []byte, off int, f *schema.FieldSpec, count int, sc *Scope, rec *Record) (int, error) {
	// 每轮迭代至少消耗1字节，次数超过剩余字节数的帧必然损坏，
	// 在分配前拒绝，防止畸形计数字段触发超大分配
	if rem := len(buf) - off; count > rem {
		return 0, fmt.Errorf("%w: group %q count %d exceeds remaining %d bytes",
			ErrInvalidRepeatCount, groupName(f), count, rem)
	}
	items := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		// 每轮迭代独立子作用域：兄弟迭代互不可见
		child := NewScope(sc)
		item, n, err := it.DecodeFields(buf, off, f.Children, child)
		if err != nil {
			return 0, fmt.Errorf("group %q iteration %d: %w", groupName(f), i, err)
		}
		items = append(items, item)
		off += n
	}
	rec.Append(groupName(f)+"_list", items)
	return off, nil
}

func (it *Interpreter) resolveRepeatCount(f *schema.FieldSpec, sc *Scope) (int, error) {
	v, ok := sc.Lookup(f.RepeatBy)
	if !ok {
		return 0, fmt.Errorf("%w: repeat_by %q", ErrMissingReference, f.RepeatBy)
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: repeat_by %q is not an integer", ErrInvalidRepeatCount, f.RepeatBy)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: repeat_by %q resolved to %d", ErrInvalidRepeatCount, f.RepeatBy, n)
	}
	return int(n), nil
}

// resolveLength 字段字节长度：显式 len、len_by 引用、或消费到缓冲区末尾
func (it *Interpreter) resolveLength(buf []byte, off int, f *schema.FieldSpec, sc *Scope) (int, error) {
	if f.Len > 0 {
		return f.Len, nil
	}
	if f.LenBy != "" {
		v, ok := sc.Lookup(f.LenBy)
		if !ok {
			return 0, fmt.Errorf("%w: len_by %q for field %q", ErrMissingReference, f.LenBy, f.Name)
		}
		n, ok := asInt64(v)
		if !ok || n < 0 {
			return 0, fmt.Errorf("%w: len_by %q resolved to %v", ErrInvalidLength, f.LenBy, v)
		}
		return int(n), nil
	}
	if f.ToEnd {
		return len(buf) - off, nil
	}
	return 0, fmt.Errorf("field %q has no length source", f.Name)
}

func (it *Interpreter) endianFor(override string) string {
	if override != "" {
		return override
	}
	if it.proto.Meta.DefaultEndian != "" {
		return it.proto.Meta.DefaultEndian
	}
	return schema.EndianLittle
}

// groupName 循环组的结果键名取首个标量字段名
func groupName(f *schema.FieldSpec) string {
	for i := range f.Children {
		c := &f.Children[i]
		if c.Name != "" {
			return c.Name
		}
		if len(c.Children) > 0 {
			return groupName(c)
		}
	}
	return "group"
}

// asInt64 将解码值归一为整数（引用解析、枚举映射用）
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case EnumValue:
		return n.Value, true
	}
	return 0, false
}

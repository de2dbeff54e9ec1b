package schema

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML 协议配置加载。文件结构沿用既有配置词汇：
//
//	meta:          protocol/version/default_endian/notes
//	types:         名称 -> { base, bytes, signed, encoding, bits, order }
//	enums:         名称 -> { 整数值: 显示名 }
//	cmds:          命令ID -> 字段列表（字段或循环组，可嵌套）
//	compatibility: head_len/tail_len/frame_head/head_fields
//	filter:        include/exclude 命令ID列表
type rawConfig struct {
	Meta          rawMeta                     `yaml:"meta"`
	Types         map[string]rawType          `yaml:"types"`
	Enums         map[string]map[int64]string `yaml:"enums"`
	Cmds          map[int64][]rawField        `yaml:"cmds"`
	Compatibility rawCompat                   `yaml:"compatibility"`
	Filter        rawFilter                   `yaml:"filter"`
}

type rawMeta struct {
	Protocol      string `yaml:"protocol"`
	Version       int    `yaml:"version"`
	DefaultEndian string `yaml:"default_endian"`
	Notes         string `yaml:"notes"`
}

type rawType struct {
	Base     string   `yaml:"base"`
	Bytes    int      `yaml:"bytes"`
	Signed   bool     `yaml:"signed"`
	Encoding string   `yaml:"encoding"`
	Bits     []string `yaml:"bits"`
	Order    string   `yaml:"order"`
}

type rawField struct {
	Len         int     `yaml:"len"`
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	ID          string  `yaml:"id"`
	Scale       *float64 `yaml:"scale"`
	ValueOffset *float64 `yaml:"value_offset"`
	Unit        string  `yaml:"unit"`
	Enum        string  `yaml:"enum"`
	Endian      string  `yaml:"endian"`
	When        string  `yaml:"when"`
	LenBy       string  `yaml:"len_by"`
	ToEnd       bool    `yaml:"consume_to_end"`
	Notes       string  `yaml:"notes"`

	RepeatBy    string        `yaml:"repeat_by"`
	RepeatConst *int          `yaml:"repeat_const"`
	Fields      []rawField    `yaml:"fields"`
	Group       *rawGroupBody `yaml:"group"`

	BitOrder  string        `yaml:"bit_order"`
	Flatten   bool          `yaml:"flatten"`
	BitGroups []rawBitGroup `yaml:"bit_groups"`
}

type rawGroupBody struct {
	Fields []rawField `yaml:"fields"`
}

type rawBitGroup struct {
	Name     string `yaml:"name"`
	StartBit int    `yaml:"start_bit"`
	Width    int    `yaml:"width"`
	Enum     string `yaml:"enum"`
}

type rawCompat struct {
	HeadLen    int            `yaml:"head_len"`
	TailLen    int            `yaml:"tail_len"`
	FrameHead  string         `yaml:"frame_head"`
	HeadFields []rawHeadField `yaml:"head_fields"`
}

type rawHeadField struct {
	Name       string  `yaml:"name"`
	Offset     int     `yaml:"offset"`
	Length     int     `yaml:"length"`
	Endian     string  `yaml:"endian"`
	Type       string  `yaml:"type"`
	ConstValue *uint64 `yaml:"const_value"`
	Required   *bool   `yaml:"required"`
	IsCmd      bool    `yaml:"is_cmd"`
}

type rawFilter struct {
	Include []int64 `yaml:"include"`
	Exclude []int64 `yaml:"exclude"`
}

// LoadFile 从 YAML 文件加载协议配置
func LoadFile(path string) (*Protocol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open protocol config: %w", err)
	}
	defer f.Close()
	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load protocol config %s: %w", path, err)
	}
	return p, nil
}

// Load 从 reader 加载并校验协议配置。任一结构性错误都会中止加载。
func Load(r io.Reader) (*Protocol, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return build(&raw)
}

func build(raw *rawConfig) (*Protocol, error) {
	p := &Protocol{
		Meta: Meta{
			Protocol:      raw.Meta.Protocol,
			Version:       raw.Meta.Version,
			DefaultEndian: raw.Meta.DefaultEndian,
			Notes:         raw.Meta.Notes,
		},
		Types: NewTypeRegistry(),
		Enums: NewEnumRegistry(),
		Cmds:  make(map[int64][]FieldSpec, len(raw.Cmds)),
	}
	if p.Meta.Version == 0 {
		p.Meta.Version = 1
	}
	endian, err := normalizeEndian(p.Meta.DefaultEndian)
	if err != nil {
		return nil, fmt.Errorf("meta.default_endian: %w", err)
	}
	if endian == "" {
		endian = EndianLittle
	}
	p.Meta.DefaultEndian = endian

	for name, rt := range raw.Types {
		td, err := buildType(name, rt)
		if err != nil {
			return nil, err
		}
		if err := p.Types.Register(name, td); err != nil {
			return nil, err
		}
	}

	for name, values := range raw.Enums {
		if err := p.Enums.Register(name, values); err != nil {
			return nil, err
		}
	}

	for cmd, rawFields := range raw.Cmds {
		fields, err := buildFields(rawFields, p)
		if err != nil {
			return nil, fmt.Errorf("cmd%d: %w", cmd, err)
		}
		p.Cmds[cmd] = fields
	}

	p.HeadLen = raw.Compatibility.HeadLen
	p.TailLen = raw.Compatibility.TailLen
	p.FrameHead = raw.Compatibility.FrameHead
	for _, rh := range raw.Compatibility.HeadFields {
		required := true
		if rh.Required != nil {
			required = *rh.Required
		}
		hfEndian, err := normalizeEndian(rh.Endian)
		if err != nil {
			return nil, fmt.Errorf("head field %q: %w", rh.Name, err)
		}
		p.HeadFields = append(p.HeadFields, HeadField{
			Name:       rh.Name,
			Offset:     rh.Offset,
			Length:     rh.Length,
			Endian:     hfEndian,
			Type:       rh.Type,
			ConstValue: rh.ConstValue,
			Required:   required,
			IsCmd:      rh.IsCmd,
		})
	}

	if len(raw.Filter.Include) > 0 {
		p.Filter.Include = make(map[int64]struct{}, len(raw.Filter.Include))
		for _, id := range raw.Filter.Include {
			p.Filter.Include[id] = struct{}{}
		}
	}
	if len(raw.Filter.Exclude) > 0 {
		p.Filter.Exclude = make(map[int64]struct{}, len(raw.Filter.Exclude))
		for _, id := range raw.Filter.Exclude {
			p.Filter.Exclude[id] = struct{}{}
		}
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func buildType(name string, rt rawType) (*TypeDef, error) {
	var base BaseKind
	switch rt.Base {
	case "uint":
		base = KindUint
	case "int":
		base = KindInt
	case "str":
		base = KindStr
	case "hex":
		base = KindHex
	case "bcd":
		base = KindBCD
	case "time.cp56time2a":
		base = KindCP56Time
	case "binary_str":
		base = KindBinaryStr
	case "bitset":
		base = KindBitset
	case "bitfield":
		base = KindBitfield
	default:
		return nil, fmt.Errorf("type %q: unsupported base %q", name, rt.Base)
	}
	td := &TypeDef{
		Name:     name,
		Base:     base,
		Bytes:    rt.Bytes,
		Signed:   base == KindInt || rt.Signed,
		Encoding: rt.Encoding,
		BitNames: rt.Bits,
		Order:    rt.Order,
	}
	// 固定宽度类型必须声明合法字节宽度
	switch base {
	case KindUint, KindInt:
		switch td.Bytes {
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("type %q: base %s requires bytes of 1/2/4/8, got %d", name, base, td.Bytes)
		}
	case KindBCD:
		if td.Bytes <= 0 {
			return nil, fmt.Errorf("type %q: bcd requires positive bytes", name)
		}
	case KindCP56Time:
		if td.Bytes == 0 {
			td.Bytes = 7
		}
		if td.Bytes != 7 {
			return nil, fmt.Errorf("type %q: cp56time2a is fixed at 7 bytes, got %d", name, td.Bytes)
		}
	case KindBitset:
		if len(td.BitNames) == 0 {
			return nil, fmt.Errorf("type %q: bitset requires bits", name)
		}
	}
	if td.Base == KindStr && td.Encoding == "" {
		td.Encoding = "ASCII"
	}
	if td.Base == KindBitfield && td.Order == "" {
		td.Order = "lsb0"
	}
	return td, nil
}

// normalizeEndian 端序词汇归一为 LE/BE，接受 little/big 别名；空串表示取默认
func normalizeEndian(s string) (string, error) {
	switch strings.ToLower(s) {
	case "":
		return "", nil
	case "le", "little":
		return EndianLittle, nil
	case "be", "big":
		return EndianBig, nil
	}
	return "", fmt.Errorf("bad endian %q, want LE/BE", s)
}

func buildFields(rawFields []rawField, p *Protocol) ([]FieldSpec, error) {
	fields := make([]FieldSpec, 0, len(rawFields))
	for _, rf := range rawFields {
		fs, err := buildField(rf, p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, fs)
	}
	return fields, nil
}

func buildField(rf rawField, p *Protocol) (FieldSpec, error) {
	// 循环组：group 块或直接给出 repeat_by/repeat_const
	if rf.Group != nil || rf.RepeatBy != "" || rf.RepeatConst != nil {
		if rf.RepeatBy != "" && rf.RepeatConst != nil {
			return FieldSpec{}, fmt.Errorf("group cannot specify both repeat_by and repeat_const")
		}
		if rf.RepeatBy == "" && rf.RepeatConst == nil {
			return FieldSpec{}, fmt.Errorf("group must specify repeat_by or repeat_const")
		}
		children := rf.Fields
		if rf.Group != nil {
			children = rf.Group.Fields
		}
		sub, err := buildFields(children, p)
		if err != nil {
			return FieldSpec{}, err
		}
		if len(sub) == 0 {
			return FieldSpec{}, fmt.Errorf("group has no fields")
		}
		fs := FieldSpec{Children: sub}
		if rf.RepeatBy != "" {
			fs.Kind = FieldValueRepeat
			fs.RepeatBy = rf.RepeatBy
		} else {
			fs.Kind = FieldConstRepeat
			fs.RepeatConst = *rf.RepeatConst
			if fs.RepeatConst < 0 {
				return FieldSpec{}, fmt.Errorf("repeat_const must be >= 0, got %d", fs.RepeatConst)
			}
		}
		return fs, nil
	}

	td, err := p.Types.Resolve(rf.Type)
	if err != nil {
		return FieldSpec{}, fmt.Errorf("field %q: %w", rf.Name, err)
	}
	fieldEndian, err := normalizeEndian(rf.Endian)
	if err != nil {
		return FieldSpec{}, fmt.Errorf("field %q: %w", rf.Name, err)
	}

	fs := FieldSpec{
		Kind:        FieldScalar,
		Name:        rf.Name,
		ID:          rf.ID,
		Type:        rf.Type,
		TypeDef:     td,
		Len:         rf.Len,
		Scale:       rf.Scale,
		ValueOffset: rf.ValueOffset,
		Unit:        rf.Unit,
		Enum:        rf.Enum,
		Endian:      fieldEndian,
		LenBy:       rf.LenBy,
		ToEnd:       rf.ToEnd,
	}

	// 位段组：类型为 bitfield，位区间在字段上声明
	if td.Base == KindBitfield || len(rf.BitGroups) > 0 {
		fs.Kind = FieldBitGroup
		fs.BitOrder = rf.BitOrder
		if fs.BitOrder == "" {
			fs.BitOrder = td.Order
		}
		if fs.BitOrder == "" {
			fs.BitOrder = "lsb0"
		}
		fs.Flatten = rf.Flatten
		for _, bg := range rf.BitGroups {
			fs.BitGroups = append(fs.BitGroups, BitGroup{
				Name:     bg.Name,
				StartBit: bg.StartBit,
				Width:    bg.Width,
				Enum:     bg.Enum,
			})
		}
		if len(fs.BitGroups) == 0 {
			return FieldSpec{}, fmt.Errorf("bitfield %q requires bit_groups", rf.Name)
		}
	}

	if rf.When != "" {
		expr, err := CompileExpr(rf.When)
		if err != nil {
			return FieldSpec{}, fmt.Errorf("field %q when: %w", rf.Name, err)
		}
		fs.When = expr
		fs.WhenSrc = rf.When
	}
	return fs, nil
}

package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 覆盖类型/枚举/头部/命令布局的完整小型配置
const sampleYAML = `
meta:
  protocol: cdz
  version: 2
  default_endian: LE

types:
  uint8: { base: uint, bytes: 1 }
  uint16: { base: uint, bytes: 2 }
  int16: { base: int, bytes: 2 }
  bcd8: { base: bcd, bytes: 8 }
  cp56: { base: time.cp56time2a }
  ascii: { base: str }
  status_word: { base: bitfield, bytes: 2 }

enums:
  枪状态:
    0: 空闲
    1: 充电中
    2: 故障

compatibility:
  head_len: 6
  tail_len: 1
  frame_head: "AA F5"
  head_fields:
    - { name: 帧头, offset: 0, length: 2, type: const, const_value: 0xF5AA }
    - { name: 数据长度, offset: 2, length: 2, type: uint }
    - { name: 命令, offset: 4, length: 2, type: uint, is_cmd: true }

cmds:
  0x0B:
    - { len: 1, name: 枪号, type: uint8, id: gun_no }
    - { len: 1, name: 枪状态, type: uint8, id: gun_state, enum: 枪状态 }
    - { len: 2, name: 电压, type: uint16, id: voltage, scale: 0.1, unit: V }
    - { len: 1, name: 记录数, type: uint8, id: rec_count }
    - repeat_by: 记录数
      fields:
        - { len: 2, name: 电流, type: uint16, id: current, scale: 0.01, unit: A }
        - { len: 7, name: 时间, type: cp56, id: ts }
    - { len: 2, name: 告警字, type: status_word, id: alarms, flatten: true,
        bit_groups: [ { name: 过压, start_bit: 0, width: 1 }, { name: 过流, start_bit: 1, width: 1 } ] }

filter:
  exclude: [0x02]
`

func TestLoad_FullConfig(t *testing.T) {
	p, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err, "完整配置应加载成功")

	assert.Equal(t, "cdz", p.Meta.Protocol)
	assert.Equal(t, 2, p.Meta.Version)
	assert.Equal(t, EndianLittle, p.Meta.DefaultEndian)
	assert.Equal(t, 6, p.HeadLen)
	assert.Equal(t, 1, p.TailLen)
	require.Len(t, p.HeadFields, 3)
	assert.True(t, p.HeadFields[2].IsCmd)

	layout, ok := p.Cmds[0x0B]
	require.True(t, ok, "cmd 0x0B 应存在")
	require.Len(t, layout, 6)

	assert.Equal(t, FieldScalar, layout[0].Kind)
	assert.Equal(t, "枪状态", layout[1].Enum)
	require.NotNil(t, layout[2].Scale)
	assert.Equal(t, 0.1, *layout[2].Scale)

	grp := layout[4]
	assert.Equal(t, FieldValueRepeat, grp.Kind)
	assert.Equal(t, "记录数", grp.RepeatBy)
	require.Len(t, grp.Children, 2)
	assert.Equal(t, KindCP56Time, grp.Children[1].TypeDef.Base)

	bits := layout[5]
	assert.Equal(t, FieldBitGroup, bits.Kind)
	assert.True(t, bits.Flatten)
	assert.Equal(t, "lsb0", bits.BitOrder)
	require.Len(t, bits.BitGroups, 2)

	assert.False(t, p.Filter.Allow(0x02), "exclude 列表中的命令应被过滤")
	assert.True(t, p.Filter.Allow(0x0B))
}

func TestLoad_Defaults(t *testing.T) {
	p, err := Load(strings.NewReader(`
meta: { protocol: mini }
types:
  u8: { base: uint, bytes: 1 }
`))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Meta.Version, "缺省版本号为1")
	assert.Equal(t, EndianLittle, p.Meta.DefaultEndian, "缺省小端")
}

func TestLoad_UnknownType(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - { len: 1, name: x, type: nosuch, id: x }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType), "未注册类型应报 ErrUnknownType")
}

func TestLoad_BadTypeWidth(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  u3: { base: uint, bytes: 3 }
`))
	require.Error(t, err, "uint 宽度 3 非法")
}

func TestLoad_CP56FixedWidth(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  t6: { base: time.cp56time2a, bytes: 6 }
`))
	require.Error(t, err, "cp56time2a 固定 7 字节")
}

func TestLoad_GroupNeedsRepeatSource(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - fields:
        - { len: 1, name: x, type: u8, id: x }
`))
	require.Error(t, err, "组缺少 repeat_by/repeat_const 应失败")
}

func TestLoad_GroupBothRepeatSources(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - repeat_by: n
      repeat_const: 2
      fields:
        - { len: 1, name: x, type: u8, id: x }
`))
	require.Error(t, err, "repeat_by 与 repeat_const 互斥")
}

func TestLoad_BadWhenExpression(t *testing.T) {
	_, err := Load(strings.NewReader(`
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - { len: 1, name: a, type: u8, id: a }
    - { len: 1, name: b, type: u8, id: b, when: "a ==" }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExprSyntax))
}

func TestValidate_WhenRefMustPrecede(t *testing.T) {
	// when 引用未出现过的字段名应在加载期拒绝
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - { len: 1, name: a, type: u8, id: a, when: "later == 1" }
    - { len: 1, name: later, type: u8, id: later }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestValidate_RepeatByMustPrecede(t *testing.T) {
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - repeat_by: 个数
      fields:
        - { len: 1, name: x, type: u8, id: x }
    - { len: 1, name: 个数, type: u8, id: cnt }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestValidate_GroupNamesDoNotLeak(t *testing.T) {
	// 组内字段名对组外的 when 不可见
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - { len: 1, name: 个数, type: u8, id: cnt }
    - repeat_by: 个数
      fields:
        - { len: 1, name: 内部, type: u8, id: inner }
    - { len: 1, name: 尾巴, type: u8, id: tail, when: "内部 == 1" }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestValidate_DuplicateScalarID(t *testing.T) {
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
cmds:
  1:
    - { len: 1, name: a, type: u8, id: same }
    - { len: 1, name: b, type: u8, id: same }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestValidate_BitGroupOverlap(t *testing.T) {
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  w: { base: bitfield, bytes: 1 }
cmds:
  1:
    - { len: 1, name: 位, type: w, id: bits,
        bit_groups: [ { name: a, start_bit: 0, width: 4 }, { name: b, start_bit: 3, width: 2 } ] }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema), "位区间重叠应报错")
}

func TestValidate_HeadFieldsNeedHeadLen(t *testing.T) {
	// 有头部字段却没有 head_len：解码期无法做整帧长度检查，必须在加载期拒绝
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
compatibility:
  head_fields:
    - { name: 命令, offset: 0, length: 2, type: uint, is_cmd: true }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestValidate_IncludeExcludeExclusive(t *testing.T) {
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
filter:
  include: [0x0B]
  exclude: [0x02]
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema), "include 与 exclude 互斥")
}

func TestValidate_ScaleEnumExclusive(t *testing.T) {
	// 缩放后的浮点值无法做枚举映射，组合应在加载期拒绝
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
enums:
  状态: { 0: 空闲 }
cmds:
  1:
    - { len: 1, name: a, type: u8, id: a, scale: 0.1, enum: 状态 }
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestLoad_EndianVocabulary(t *testing.T) {
	// little/big 别名归一为 LE/BE
	p, err := Load(strings.NewReader(`
meta: { protocol: t, default_endian: big }
types:
  u16: { base: uint, bytes: 2 }
cmds:
  1:
    - { len: 2, name: a, type: u16, id: a, endian: little }
`))
	require.NoError(t, err)
	assert.Equal(t, EndianBig, p.Meta.DefaultEndian)
	assert.Equal(t, EndianLittle, p.Cmds[1][0].Endian)

	// 无法识别的端序词汇应在加载期报错，而不是静默按小端解码
	_, err = Load(strings.NewReader(`
meta: { protocol: t, default_endian: sideways }
`))
	require.Error(t, err, "非法 default_endian 应报错")

	_, err = Load(strings.NewReader(`
meta: { protocol: t }
compatibility:
  head_len: 2
  head_fields:
    - { name: 命令, offset: 0, length: 2, type: uint, endian: middle, is_cmd: true }
`))
	require.Error(t, err, "非法头部端序应报错")
}

func TestValidate_HeadFieldsOneCmd(t *testing.T) {
	_, err := Load(strings.NewReader(`
meta: { protocol: t }
types:
  u8: { base: uint, bytes: 1 }
compatibility:
  head_len: 4
  head_fields:
    - { name: a, offset: 0, length: 2, type: uint, is_cmd: true }
    - { name: b, offset: 2, length: 2, type: uint, is_cmd: true }
`))
	require.Error(t, err, "is_cmd 字段必须恰好一个")
}

func TestRegistry_DuplicateType(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.Register("u8", &TypeDef{Name: "u8", Base: KindUint, Bytes: 1}))
	err := r.Register("u8", &TypeDef{Name: "u8", Base: KindUint, Bytes: 1})
	assert.True(t, errors.Is(err, ErrDuplicateType))
}

func TestEnumRegistry_Lookup(t *testing.T) {
	r := NewEnumRegistry()
	require.NoError(t, r.Register("状态", map[int64]string{0: "空闲", 1: "充电中"}))

	name, ok := r.Lookup("状态", 1)
	assert.True(t, ok)
	assert.Equal(t, "充电中", name)

	// 未命中：调用方回退到原始值
	_, ok = r.Lookup("状态", 99)
	assert.False(t, ok)
	_, ok = r.Lookup("不存在", 0)
	assert.False(t, ok)
}

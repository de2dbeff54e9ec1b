package decode

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lanford-code/cdzparse/internal/schema"
)

func TestDecodeScalar_Uint(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindUint, Bytes: 2}

	v, n, err := DecodeScalar([]byte{0x34, 0x12}, 0, td, 2, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes consumed, got %d", n)
	}
	if v.(uint64) != 0x1234 {
		t.Errorf("LE: expected 0x1234, got 0x%X", v)
	}

	v, _, err = DecodeScalar([]byte{0x12, 0x34}, 0, td, 2, schema.EndianBig)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(uint64) != 0x1234 {
		t.Errorf("BE: expected 0x1234, got 0x%X", v)
	}
}

func TestDecodeScalar_IntSignExtension(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindInt, Bytes: 2, Signed: true}

	// 0xFFFE LE = -2
	v, _, err := DecodeScalar([]byte{0xFE, 0xFF}, 0, td, 2, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(int64) != -2 {
		t.Errorf("expected -2, got %d", v)
	}

	v, _, err = DecodeScalar([]byte{0x7F, 0x00}, 0, td, 2, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(int64) != 127 {
		t.Errorf("expected 127, got %d", v)
	}
}

func TestDecodeScalar_Underrun(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindUint, Bytes: 4}
	_, _, err := DecodeScalar([]byte{0x01, 0x02}, 0, td, 4, schema.EndianLittle)
	if !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("expected ErrBufferUnderrun, got %v", err)
	}
	// 偏移量切入缓冲区中段同样检查
	_, _, err = DecodeScalar([]byte{0x01, 0x02, 0x03, 0x04}, 2, td, 4, schema.EndianLittle)
	if !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("expected ErrBufferUnderrun at offset, got %v", err)
	}
}

func TestDecodeScalar_ASCII(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindStr, Encoding: "ASCII"}

	// 末尾 NUL 填充去除
	v, _, err := DecodeScalar([]byte("CDZ01\x00\x00\x00"), 0, td, 8, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "CDZ01" {
		t.Errorf("expected CDZ01, got %q", v)
	}

	// 不可打印字节：整体回退为十六进制，不静默截断
	v, _, err = DecodeScalar([]byte{0x41, 0x01, 0x42}, 0, td, 3, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "410142" {
		t.Errorf("expected hex fallback 410142, got %q", v)
	}
}

func TestDecodeScalar_BCD(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindBCD, Bytes: 4}

	// 大端：字节顺序即数字顺序
	v, _, err := DecodeScalar([]byte{0x20, 0x23, 0x12, 0x14}, 0, td, 4, schema.EndianBig)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "20231214" {
		t.Errorf("BE: expected 20231214, got %q", v)
	}

	// 小端：字节序反转后读数字
	v, _, err = DecodeScalar([]byte{0x14, 0x12, 0x23, 0x20}, 0, td, 4, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "20231214" {
		t.Errorf("LE: expected 20231214, got %q", v)
	}

	// 半字节 > 9 非法
	_, _, err = DecodeScalar([]byte{0x1A}, 0, td, 1, schema.EndianBig)
	if !errors.Is(err, ErrInvalidBCDDigit) {
		t.Errorf("expected ErrInvalidBCDDigit, got %v", err)
	}
}

func TestDecodeScalar_CP56Time(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindCP56Time, Bytes: 7}

	// 2023-12-14 10:30:45.500 → ms=45500(0xB1BC) min=30 hour=10 day=14 month=12 year=23
	raw := []byte{0xBC, 0xB1, 30, 10, 14, 12, 23}
	v, _, err := DecodeScalar(raw, 0, td, 7, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	ts := v.(time.Time)
	want := time.Date(2023, 12, 14, 10, 30, 45, 500*int(time.Millisecond), time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected %v, got %v", want, ts)
	}
}

func TestDecodeScalar_CP56TimeInvalid(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindCP56Time, Bytes: 7}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"毫秒越界", []byte{0x61, 0xEA, 0, 0, 1, 1, 0}}, // 60001ms
		{"月为0", []byte{0, 0, 0, 0, 1, 0, 0}},
		{"月为13", []byte{0, 0, 0, 0, 1, 13, 0}},
		{"日为0", []byte{0, 0, 0, 0, 0, 1, 0}},
	}
	for _, c := range cases {
		_, _, err := DecodeScalar(c.raw, 0, td, 7, schema.EndianLittle)
		if !errors.Is(err, ErrInvalidTimeField) {
			t.Errorf("%s: expected ErrInvalidTimeField, got %v", c.name, err)
		}
	}
}

func TestDecodeScalar_Hex(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindHex}
	v, _, err := DecodeScalar([]byte{0xAA, 0xF5, 0x0B}, 0, td, 3, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "AAF50B" {
		t.Errorf("expected AAF50B, got %q", v)
	}
}

func TestDecodeScalar_BinaryStr(t *testing.T) {
	td := &schema.TypeDef{Base: schema.KindBinaryStr, Order: "msb0"}
	v, _, err := DecodeScalar([]byte{0xA5}, 0, td, 1, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "10100101" {
		t.Errorf("msb0: expected 10100101, got %q", v)
	}

	td = &schema.TypeDef{Base: schema.KindBinaryStr, Order: "lsb0"}
	v, _, err = DecodeScalar([]byte{0xA5}, 0, td, 1, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if v.(string) != "10100101" {
		t.Errorf("lsb0: expected 10100101 reversed-read, got %q", v)
	}
}

func TestDecodeScalar_BinaryStrWiderThan8Bytes(t *testing.T) {
	// 9字节位串超出64位：最高字节与最低字节的位都必须保留
	data := make([]byte, 9)
	data[0] = 0x01 // 整数第 0 位
	data[8] = 0x80 // 整数第 71 位

	td := &schema.TypeDef{Base: schema.KindBinaryStr, Order: "msb0"}
	v, _, err := DecodeScalar(data, 0, td, 9, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	s := v.(string)
	if len(s) != 72 {
		t.Fatalf("expected 72 bits, got %d", len(s))
	}
	if s[0] != '1' || s[71] != '1' {
		t.Errorf("msb0: high and low bits must survive, got %q...%q", s[0], s[71])
	}
	if strings.Count(s, "1") != 2 {
		t.Errorf("expected exactly 2 set bits, got %q", s)
	}
}

func TestDecodeScalar_Bitset(t *testing.T) {
	td := &schema.TypeDef{
		Base:     schema.KindBitset,
		Bytes:    1,
		BitNames: []string{"过压", "欠压", "过流"},
	}
	v, _, err := DecodeScalar([]byte{0x05}, 0, td, 1, schema.EndianLittle)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	rec := v.(Record)
	if len(rec) != 3 {
		t.Fatalf("expected 3 bits, got %d", len(rec))
	}
	if rec[0].Value != true || rec[1].Value != false || rec[2].Value != true {
		t.Errorf("bit 0x05: expected true/false/true, got %v", rec)
	}
}

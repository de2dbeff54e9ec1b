package decode

import (
	"errors"
	"strings"
	"testing"

	"github.com/lanford-code/cdzparse/internal/schema"
)

// buildFrame 组装 AA F5 + 数据长度(LE) + 命令(LE) + 载荷 + 校验尾
func buildFrame(cmd uint16, payload []byte) []byte {
	frame := []byte{0xAA, 0xF5}
	dataLen := uint16(len(payload))
	frame = append(frame, byte(dataLen), byte(dataLen>>8))
	frame = append(frame, byte(cmd), byte(cmd>>8))
	frame = append(frame, payload...)
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return append(frame, sum)
}

func TestDecodeHeader(t *testing.T) {
	it := loadTestProtocol(t)
	frame := buildFrame(0x0B, []byte{0x01, 0x00, 0x00, 0x00})

	h, err := it.DecodeHeader(frame)
	if err != nil {
		t.Fatalf("header error: %v", err)
	}
	if h.Cmd != 0x0B {
		t.Errorf("expected cmd 0x0B, got 0x%X", h.Cmd)
	}
	if v, _ := h.Fields.Get("数据长度"); v.(uint64) != 4 {
		t.Errorf("数据长度: expected 4, got %v", v)
	}

	// 头部字段应进入载荷作用域
	sc := h.HeaderScope()
	if v, ok := sc.Lookup("命令"); !ok || v.(uint64) != 0x0B {
		t.Errorf("header scope missing 命令, got %v", v)
	}
}

func TestDecodeHeader_ConstMismatch(t *testing.T) {
	it := loadTestProtocol(t)
	frame := buildFrame(0x0B, []byte{0x01, 0x00, 0x00, 0x00})
	frame[0] = 0x55 // 破坏帧头

	_, err := it.DecodeHeader(frame)
	if !errors.Is(err, ErrHeaderMismatch) {
		t.Errorf("expected ErrHeaderMismatch, got %v", err)
	}
}

func TestDecodeHeader_TooShort(t *testing.T) {
	it := loadTestProtocol(t)
	_, err := it.DecodeHeader([]byte{0xAA, 0xF5, 0x00})
	if !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("expected ErrBufferUnderrun, got %v", err)
	}
}

func TestDecodeHeader_FieldBeyondFrame(t *testing.T) {
	// 绕过加载期校验直接构造：head_len 为 0 但头字段越出帧长。
	// 必须返回下溢错误而不是切片越界
	p := &schema.Protocol{
		Meta: schema.Meta{Protocol: "t"},
		HeadFields: []schema.HeadField{
			{Name: "命令", Offset: 0, Length: 2, Type: "uint", IsCmd: true},
		},
	}
	it := NewInterpreter(p)

	_, err := it.DecodeHeader([]byte{0x01})
	if !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("expected ErrBufferUnderrun, got %v", err)
	}
}

func TestDecodeFrame_Dispatch(t *testing.T) {
	it := loadTestProtocol(t)
	frame := buildFrame(0x0B, []byte{0x02, 0x01, 0x98, 0x08})

	res, err := it.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("frame error: %v", err)
	}
	if res.Skipped {
		t.Fatal("frame should not be skipped")
	}
	if v, _ := res.Payload.Get("枪号"); v.(uint64) != 2 {
		t.Errorf("枪号: expected 2, got %v", v)
	}
	// 尾部校验字节不属于载荷
	if len(res.Payload) != 3 {
		t.Errorf("expected 3 payload fields, got %d: %v", len(res.Payload), res.Payload)
	}
}

func TestDecodeFrame_UnknownCommand(t *testing.T) {
	it := loadTestProtocol(t)
	frame := buildFrame(0x99, nil)

	_, err := it.DecodeFrame(frame)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDecodeFrame_FilteredCommandSkipped(t *testing.T) {
	p, err := schema.Load(strings.NewReader(testYAML + `
filter:
  exclude: [0x0C]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	it := NewInterpreter(p)

	res, err := it.DecodeFrame(buildFrame(0x0C, []byte{0x00}))
	if err != nil {
		t.Fatalf("filtered frame should not error: %v", err)
	}
	if !res.Skipped {
		t.Error("excluded command should be marked skipped")
	}
	if res.Payload != nil {
		t.Errorf("skipped frame must not decode payload, got %v", res.Payload)
	}
}

func TestDecodeFrame_HeaderReferenceInPayload(t *testing.T) {
	// 载荷 when 条件可引用头部字段
	p, err := schema.Load(strings.NewReader(`
meta: { protocol: t, default_endian: LE }
types:
  u8: { base: uint, bytes: 1 }
compatibility:
  head_len: 6
  tail_len: 1
  head_fields:
    - { name: 帧头, offset: 0, length: 2, type: const, const_value: 0xF5AA }
    - { name: 数据长度, offset: 2, length: 2, type: uint }
    - { name: 命令, offset: 4, length: 2, type: uint, is_cmd: true }
cmds:
  0x01:
    - { len: 1, name: 扩展, type: u8, id: ext, when: "数据长度 > 0" }
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	it := NewInterpreter(p)

	res, err := it.DecodeFrame(buildFrame(0x01, []byte{0x42}))
	if err != nil {
		t.Fatalf("frame error: %v", err)
	}
	if v, ok := res.Payload.Get("扩展"); !ok || v.(uint64) != 0x42 {
		t.Errorf("header-referencing when should decode field, got %v", v)
	}
}

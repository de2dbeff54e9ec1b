package decode

import "fmt"

// Header 头部解码结果
type Header struct {
	Fields Record
	Cmd    int64 // 命令ID，来自 is_cmd 标记的头字段
}

// DecodeHeader 按偏移量解码帧头部。frame 至少应含 head_len 字节，
// const 字段不匹配时返回 ErrHeaderMismatch。
func (it *Interpreter) DecodeHeader(frame []byte) (*Header, error) {
	if len(frame) < it.proto.HeadLen {
		return nil, fmt.Errorf("%w: frame %d bytes, head_len %d", ErrBufferUnderrun, len(frame), it.proto.HeadLen)
	}

	h := &Header{Fields: make(Record, 0, len(it.proto.HeadFields))}
	for i := range it.proto.HeadFields {
		hf := &it.proto.HeadFields[i]
		end := hf.Offset + hf.Length
		if end > len(frame) {
			return nil, fmt.Errorf("%w: header field %q needs bytes [%d,%d), frame has %d",
				ErrBufferUnderrun, hf.Name, hf.Offset, end, len(frame))
		}
		data := frame[hf.Offset:end]
		endian := it.endianFor(hf.Endian)

		switch hf.Type {
		case "uint", "const":
			u := bytesToUint(data, endian)
			if hf.Type == "const" && hf.ConstValue != nil && u != *hf.ConstValue {
				return nil, fmt.Errorf("%w: field %q expected 0x%X got 0x%X", ErrHeaderMismatch, hf.Name, *hf.ConstValue, u)
			}
			h.Fields.Append(hf.Name, u)
			if hf.IsCmd {
				h.Cmd = int64(u)
			}
		case "hex":
			h.Fields.Append(hf.Name, hexUpper(data))
		case "ascii":
			h.Fields.Append(hf.Name, decodeText(data))
		default:
			return nil, fmt.Errorf("header field %q: unsupported type %q", hf.Name, hf.Type)
		}
	}
	return h, nil
}

// HeaderScope 将头字段注入新作用域，供载荷字段的引用解析
func (h *Header) HeaderScope() *Scope {
	sc := NewScope(nil)
	for _, e := range h.Fields {
		sc.Bind(e.Name, e.Value)
	}
	return sc
}

package decode

import (
	"fmt"
	"strings"
	"time"

	"github.com/lanford-code/cdzparse/internal/schema"
)

// DecodeScalar 在 buf[off:] 处按类型定义解码一个标量。
// 返回解码值与消耗的字节数。length 为本字段的字节长度（已由上层解析）。
func DecodeScalar(buf []byte, off int, td *schema.TypeDef, length int, endian string) (any, int, error) {
	if off+length > len(buf) || length < 0 {
		return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrBufferUnderrun, length, off, len(buf)-off)
	}
	data := buf[off : off+length]

	switch td.Base {
	case schema.KindUint:
		return bytesToUint(data, endian), length, nil

	case schema.KindInt:
		return bytesToInt(data, endian), length, nil

	case schema.KindStr:
		return decodeText(data), length, nil

	case schema.KindHex, schema.KindBitfield:
		return hexUpper(data), length, nil

	case schema.KindBCD:
		s, err := decodeBCD(data, endian)
		if err != nil {
			return nil, 0, err
		}
		return s, length, nil

	case schema.KindCP56Time:
		t, err := decodeCP56Time(data)
		if err != nil {
			return nil, 0, err
		}
		return t, length, nil

	case schema.KindBinaryStr:
		return bitString(data, endian, td.Order), length, nil

	case schema.KindBitset:
		return decodeBitset(data, endian, td.BitNames), length, nil
	}
	return nil, 0, fmt.Errorf("unsupported base kind %s", td.Base)
}

// bytesToUint 按端序将 1/2/4/8 字节解释为无符号整数
func bytesToUint(data []byte, endian string) uint64 {
	var v uint64
	if endian == schema.EndianBig {
		for _, b := range data {
			v = v<<8 | uint64(b)
		}
		return v
	}
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// bytesToInt 二进制补码有符号解释
func bytesToInt(data []byte, endian string) int64 {
	u := bytesToUint(data, endian)
	bits := uint(len(data) * 8)
	if bits == 0 || bits >= 64 {
		return int64(u)
	}
	if u&(1<<(bits-1)) != 0 {
		return int64(u | ^uint64(0)<<bits)
	}
	return int64(u)
}

// decodeText 解码 ASCII 文本。去除末尾 NUL；
// 含非可打印字节时整体回退为十六进制展示，绝不静默截断。
func decodeText(data []byte) string {
	trimmed := data
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	for _, b := range trimmed {
		if b < 0x20 || b > 0x7E {
			return hexUpper(data)
		}
	}
	return string(trimmed)
}

func hexUpper(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// decodeBCD 压缩BCD：每字节高低两个半字节各一位十进制数字。
// 字节顺序按端序（常见为大端：高位字节在前）。
func decodeBCD(data []byte, endian string) (string, error) {
	ordered := data
	if endian == schema.EndianLittle {
		ordered = make([]byte, len(data))
		for i, b := range data {
			ordered[len(data)-1-i] = b
		}
	}
	var sb strings.Builder
	sb.Grow(len(ordered) * 2)
	for i, b := range ordered {
		hi := b >> 4
		lo := b & 0x0F
		if hi > 9 || lo > 9 {
			return "", fmt.Errorf("%w: byte %d is 0x%02X", ErrInvalidBCDDigit, i, b)
		}
		sb.WriteByte('0' + hi)
		sb.WriteByte('0' + lo)
	}
	return sb.String(), nil
}

// decodeCP56Time 7字节 CP56Time2a：
// ms[2](LE) + minute[1] + hour[1] + day[1] + month[1] + year[1](2000年偏移)。
// 各子字段做值域校验，越界报 ErrInvalidTimeField 并指明子字段。
func decodeCP56Time(data []byte) (time.Time, error) {
	if len(data) != 7 {
		return time.Time{}, fmt.Errorf("%w: cp56time2a needs 7 bytes, got %d", ErrBufferUnderrun, len(data))
	}
	ms := int(data[0]) | int(data[1])<<8
	minute := int(data[2] & 0x3F)
	hour := int(data[3] & 0x1F)
	day := int(data[4] & 0x1F)
	month := int(data[5] & 0x0F)
	year := int(data[6] & 0x7F)

	switch {
	case ms > 59999:
		return time.Time{}, fmt.Errorf("%w: milliseconds %d", ErrInvalidTimeField, ms)
	case minute > 59:
		return time.Time{}, fmt.Errorf("%w: minute %d", ErrInvalidTimeField, minute)
	case hour > 23:
		return time.Time{}, fmt.Errorf("%w: hour %d", ErrInvalidTimeField, hour)
	case day < 1 || day > 31:
		return time.Time{}, fmt.Errorf("%w: day %d", ErrInvalidTimeField, day)
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidTimeField, month)
	case year > 99:
		return time.Time{}, fmt.Errorf("%w: year offset %d", ErrInvalidTimeField, year)
	}

	return time.Date(2000+year, time.Month(month), day, hour, minute, ms/1000,
		ms%1000*int(time.Millisecond), time.UTC), nil
}

// bitString 按位 0/1 渲染。msb0 从最高位开始，lsb0 从最低位开始。
// 逐字节取位，宽度不受 64 位限制。
func bitString(data []byte, endian, order string) string {
	le := leOrder(data, endian)
	total := len(data) * 8
	var sb strings.Builder
	sb.Grow(total)
	if order == "lsb0" {
		for i := 0; i < total; i++ {
			sb.WriteByte('0' + bitAt(le, i))
		}
	} else {
		for i := total - 1; i >= 0; i-- {
			sb.WriteByte('0' + bitAt(le, i))
		}
	}
	return sb.String()
}

// decodeBitset 逐位布尔集合：第 i 个名字对应整数的第 i 位（LSB 为 0）
func decodeBitset(data []byte, endian string, names []string) Record {
	le := leOrder(data, endian)
	total := len(data) * 8
	var rec Record
	for i, name := range names {
		if i >= total {
			break
		}
		rec.Append(name, bitAt(le, i) == 1)
	}
	return rec
}

// leOrder 统一为低位字节在前，之后第 i 位即整数的第 i 位
func leOrder(data []byte, endian string) []byte {
	if endian != schema.EndianBig {
		return data
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}
	return out
}

func bitAt(le []byte, i int) byte {
	return le[i/8] >> (i % 8) & 1
}

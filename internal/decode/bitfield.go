package decode

import (
	"fmt"

	"github.com/lanford-code/cdzparse/internal/schema"
)

// DecodeBitGroups 将 length 字节读为一个无符号整数后，按命名位区间拆解。
// bit 0 在 lsb0 下为最低位，msb0 下为整个 length*8 位值的最高位。
// 枚举映射缺失时回退为原始整数，不报错。
func DecodeBitGroups(buf []byte, off, length int, endian, bitOrder string,
	groups []schema.BitGroup, enums *schema.EnumRegistry) (Record, int, error) {

	if off+length > len(buf) {
		return nil, 0, fmt.Errorf("%w: bitfield needs %d bytes at offset %d, have %d",
			ErrBufferUnderrun, length, off, len(buf)-off)
	}
	v := bytesToUint(buf[off:off+length], endian)
	totalBits := length * 8

	rec := make(Record, 0, len(groups))
	for _, g := range groups {
		start := g.StartBit
		if bitOrder == "msb0" {
			start = totalBits - g.StartBit - g.Width
		}
		mask := uint64(1)<<g.Width - 1
		raw := int64(v >> start & mask)

		var value any = raw
		if g.Enum != "" && enums != nil {
			if label, ok := enums.Lookup(g.Enum, raw); ok {
				value = EnumValue{Value: raw, Name: label}
			}
		}
		rec.Append(g.Name, value)
	}
	return rec, length, nil
}

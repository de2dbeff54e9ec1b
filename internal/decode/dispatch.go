package decode

import (
	"fmt"
)

// Result 单帧解码结果
type Result struct {
	Header  *Header
	Payload Record
	Skipped bool // 被命令过滤器排除，未解码载荷
}

// DecodeFrame 解码一帧完整报文：头部、过滤、按命令分发载荷布局。
// 未知命令返回 ErrUnknownCommand；被过滤的命令返回 Skipped 结果，不算错误。
func (it *Interpreter) DecodeFrame(frame []byte) (*Result, error) {
	h, err := it.DecodeHeader(frame)
	if err != nil {
		return nil, err
	}

	if !it.proto.Filter.Allow(h.Cmd) {
		return &Result{Header: h, Skipped: true}, nil
	}

	layout, ok := it.proto.Cmds[h.Cmd]
	if !ok {
		return nil, fmt.Errorf("%w: cmd 0x%X", ErrUnknownCommand, h.Cmd)
	}

	end := len(frame) - it.proto.TailLen
	if end < it.proto.HeadLen {
		return nil, fmt.Errorf("%w: frame %d bytes shorter than head %d + tail %d",
			ErrBufferUnderrun, len(frame), it.proto.HeadLen, it.proto.TailLen)
	}
	payload := frame[it.proto.HeadLen:end]

	rec, _, err := it.DecodeFields(payload, 0, layout, h.HeaderScope())
	if err != nil {
		return nil, fmt.Errorf("cmd 0x%X: %w", h.Cmd, err)
	}
	return &Result{Header: h, Payload: rec}, nil
}

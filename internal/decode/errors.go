// Package decode 配置驱动的二进制字段解码引擎。
// 输入为一帧完整字节与只读协议描述，输出有序的字段名->值记录。
// 所有错误都限定在当前帧：调用方记录后跳过该帧继续，绝不部分输出。
package decode

import "errors"

var (
	// ErrBufferUnderrun 剩余字节不足以解码请求的字段
	ErrBufferUnderrun = errors.New("buffer underrun")
	// ErrInvalidBCDDigit BCD 半字节取值超出 0-9
	ErrInvalidBCDDigit = errors.New("invalid bcd digit")
	// ErrInvalidTimeField CP56Time2a 子字段超出值域
	ErrInvalidTimeField = errors.New("invalid time field")
	// ErrMissingReference len_by/repeat_by/when 引用的字段不在作用域内
	ErrMissingReference = errors.New("missing field reference")
	// ErrInvalidRepeatCount 解析出的循环次数为负
	ErrInvalidRepeatCount = errors.New("invalid repeat count")
	// ErrInvalidLength len_by 解析出的字节长度为负
	ErrInvalidLength = errors.New("invalid field length")
	// ErrHeaderMismatch 头部常量字段与期望值不符，该帧被丢弃
	ErrHeaderMismatch = errors.New("frame header mismatch")
	// ErrUnknownCommand 命令ID没有注册对应布局
	ErrUnknownCommand = errors.New("unknown command")
)

// ErrorKind 返回错误的分类名，用于指标与上层报告
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBufferUnderrun):
		return "buffer_underrun"
	case errors.Is(err, ErrInvalidBCDDigit):
		return "invalid_bcd"
	case errors.Is(err, ErrInvalidTimeField):
		return "invalid_time"
	case errors.Is(err, ErrMissingReference):
		return "missing_reference"
	case errors.Is(err, ErrInvalidRepeatCount):
		return "invalid_repeat_count"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrHeaderMismatch):
		return "header_mismatch"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	default:
		return "decode_error"
	}
}

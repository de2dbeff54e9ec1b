// Package timefilter 帧时间戳过滤。支持绝对时间区间与相对时长两种写法。
package timefilter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadTimeSpec 时间范围参数无法解析
var ErrBadTimeSpec = errors.New("bad time range spec")

// Range 解析后的时间区间 [Start, End]
type Range struct {
	Start time.Time
	End   time.Time
}

var (
	absPatterns = []struct {
		re     *regexp.Regexp
		layout string
	}{
		{regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`), "2006-01-02 15:04:05"},
		{regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`), "2006-01-02 15:04"},
		{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	}
	relPattern = regexp.MustCompile(`^(\d+)([smhd])$`)
)

// ParseAbsolute 解析绝对时间。接受 YYYY-MM-DD[ HH:MM[:SS]] 三种精度。
func ParseAbsolute(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, p := range absPatterns {
		if p.re.MatchString(s) {
			t, err := time.ParseInLocation(p.layout, s, time.Local)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q: %v", ErrBadTimeSpec, s, err)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimeSpec, s)
}

// ParseRelative 解析相对时长（30m/24h/7d），区间为 [now-时长, now]
func ParseRelative(s string, now time.Time) (*Range, error) {
	m := relPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimeSpec, s)
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimeSpec, s)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	d := time.Duration(amount) * unit
	return &Range{Start: now.Add(-d), End: now}, nil
}

// ParseRange 解析时间范围参数。spec 形如：
//
//	"30m"                                   相对时长
//	"2023-12-01 ~ 2023-12-02 18:00"         绝对区间
//	"2023-12-01 ~"                          仅起点，终点取当前时间
//	"~ 2023-12-02"                          仅终点，起点取 epoch
//
// 空串返回 nil（不过滤）。
func ParseRange(spec string, now time.Time) (*Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	if !strings.Contains(spec, "~") {
		return ParseRelative(spec, now)
	}

	parts := strings.SplitN(spec, "~", 2)
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	r := &Range{Start: time.Unix(0, 0), End: now}
	if startStr != "" {
		t, err := ParseAbsolute(startStr)
		if err != nil {
			return nil, err
		}
		r.Start = t
	}
	if endStr != "" {
		t, err := ParseAbsolute(endStr)
		if err != nil {
			return nil, err
		}
		r.End = t
	}
	if r.Start.After(r.End) {
		return nil, fmt.Errorf("%w: start after end", ErrBadTimeSpec)
	}
	return r, nil
}

// Contains 判断时间戳是否落在区间内（闭区间）。
// r 为 nil 表示不过滤，一律通过。
func (r *Range) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	return !t.Before(r.Start) && !t.After(r.End)
}

// ContainsStamp 解析帧上的文本时间戳后判断。
// 时间戳格式不合法的帧放行：宁可多解析也不漏帧。
func (r *Range) ContainsStamp(stamp string) bool {
	if r == nil {
		return true
	}
	t, err := ParseStamp(stamp)
	if err != nil {
		return true
	}
	return r.Contains(t)
}

var colonMillis = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}):(\d{3})$`)

// ParseStamp 解析日志行时间戳，毫秒分隔符兼容 : 与 .
func ParseStamp(stamp string) (time.Time, error) {
	stamp = strings.TrimSpace(stamp)
	// 某些设备日志用冒号分隔毫秒，归一为小数点再解析
	if m := colonMillis.FindStringSubmatch(stamp); m != nil {
		stamp = m[1] + "." + m[2]
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, stamp, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: stamp %q", ErrBadTimeSpec, stamp)
}

// String 可读的区间描述
func (r *Range) String() string {
	if r == nil {
		return "(no time filter)"
	}
	return fmt.Sprintf("%s ~ %s", r.Start.Format("2006-01-02 15:04:05"), r.End.Format("2006-01-02 15:04:05"))
}

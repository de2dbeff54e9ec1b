// Package report 解析结果文本报告：汇总、命令统计与逐帧明细，
// 写入 parsed_<协议名>_log_<时间戳>.txt。
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lanford-code/cdzparse/internal/decode"
	"github.com/lanford-code/cdzparse/internal/parser"
	"github.com/lanford-code/cdzparse/internal/schema"
)

// Writer 报告生成器
type Writer struct {
	proto *schema.Protocol
	log   *zap.Logger
}

// NewWriter 创建报告生成器
func NewWriter(proto *schema.Protocol, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{proto: proto, log: logger}
}

// Render 生成报告全文
func (w *Writer) Render(results []parser.FrameResult, st *parser.Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "成功解析 %d 条数据（共 %d 条，跳过 %d，失败 %d）\n",
		st.Decoded, st.Total, st.Skipped, st.Failed)
	fmt.Fprintf(&b, "协议: %s v%d\n", w.proto.Meta.Protocol, w.proto.Meta.Version)
	fmt.Fprintf(&b, "支持命令: %d 个\n", len(w.proto.Cmds))

	b.WriteString("命令统计:\n")
	cmds := make([]int64, 0, len(st.PerCmd))
	for cmd := range st.PerCmd {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "  cmd%d: %d 条\n", cmd, st.PerCmd[cmd])
	}

	if len(st.Errors) > 0 {
		b.WriteString("错误统计:\n")
		kinds := make([]string, 0, len(st.Errors))
		for k := range st.Errors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %s: %d 条\n", k, st.Errors[k])
		}
	}

	item := 0
	for i := range results {
		r := &results[i]
		if r.Skipped {
			continue
		}
		item++
		fmt.Fprintf(&b, "\n=== 数据项 %d ===\n", item)
		fmt.Fprintf(&b, "时间: %s\n", orNA(r.Frame.Stamp))
		fmt.Fprintf(&b, "方向: %s\n", orNA(r.Frame.Direction))
		fmt.Fprintf(&b, "命令: cmd%d\n", r.Cmd)
		if r.Err != nil {
			fmt.Fprintf(&b, "解析错误: %v\n", r.Err)
			continue
		}
		if len(r.Payload) > 0 {
			b.WriteString("解析内容:\n")
			writeRecord(&b, r.Payload, 1)
		}
	}
	return b.String()
}

// WriteFile 将报告写入输出目录，返回文件路径
func (w *Writer) WriteFile(dir string, results []parser.FrameResult, st *parser.Stats) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	stamp := time.Now().Format("2006-01-02 15-04-05")
	name := fmt.Sprintf("parsed_%s_log_%s.txt", w.proto.Meta.Protocol, stamp)
	path := filepath.Join(dir, name)

	content := w.Render(results, st)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	w.log.Info("解析结果已保存", zap.String("path", path), zap.Int("decoded", st.Decoded))
	return path, nil
}

// writeRecord 递归渲染记录。列表只展开前3项，其余折叠计数。
func writeRecord(b *strings.Builder, rec decode.Record, indent int) {
	prefix := strings.Repeat("  ", indent)
	for _, e := range rec {
		switch v := e.Value.(type) {
		case decode.Record:
			fmt.Fprintf(b, "%s%s:\n", prefix, e.Name)
			writeRecord(b, v, indent+1)
		case []decode.Record:
			fmt.Fprintf(b, "%s%s: [%d 项]\n", prefix, e.Name, len(v))
			for i, item := range v {
				if i >= 3 {
					fmt.Fprintf(b, "%s  ... 还有 %d 项\n", prefix, len(v)-3)
					break
				}
				fmt.Fprintf(b, "%s  [%d]:\n", prefix, i)
				writeRecord(b, item, indent+2)
			}
		case time.Time:
			fmt.Fprintf(b, "%s%s: %s\n", prefix, e.Name, v.Format("2006-01-02 15:04:05.000"))
		default:
			fmt.Fprintf(b, "%s%s: %v\n", prefix, e.Name, v)
		}
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

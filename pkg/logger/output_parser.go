package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 命令回显的头部和尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
	Total     int      `json:"total"`
}

// ParseOutputLines 提取输出的头尾各 maxLines 行
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutputLines{}
	}
	lines := strings.Split(output, "\n")
	total := len(lines)

	head := lines
	if total > maxLines {
		head = lines[:maxLines]
	}
	out := OutputLines{
		HeadLines: append([]string(nil), head...),
		Total:     total,
	}
	// 行数不足时 tail 与 head 相同，不重复记录
	if total > maxLines {
		out.TailLines = append([]string(nil), lines[total-maxLines:]...)
	}
	return out
}

// FormatOutputLines 格式化为单行日志文本
func FormatOutputLines(lines OutputLines) string {
	var parts []string
	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	if len(lines.TailLines) > 0 {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

// DebugCommandOutput 在 debug 级别记录某个目标上命令回显的 head/tail 行
func DebugCommandOutput(target, command, output string, maxLines int) {
	if GetLogger().Level < logrus.DebugLevel {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if lines.Total == 0 {
		return
	}
	WithFields(logrus.Fields{
		"target":  target,
		"command": command,
		"lines":   lines.Total,
	}).Debug(FormatOutputLines(lines))
}

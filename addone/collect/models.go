package collect

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// ParseContext 解析上下文
type ParseContext struct {
	TargetID string
	Identity session.Identity
	// LogTail 事件日志保留的末尾行数
	LogTail int
}

// Response 单条命令的原始输出
type Response struct {
	Command string
	Text    string
	Success bool
}

// FromCommands 将会话命令记录转换为解析输入
func FromCommands(cmds []session.Command) []Response {
	out := make([]Response, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, Response{Command: c.Text, Text: c.Response, Success: c.Success})
	}
	return out
}

// Lookup 返回指定命令的成功输出
func Lookup(responses []Response, command string) (string, bool) {
	for _, r := range responses {
		if r.Success && strings.EqualFold(strings.TrimSpace(r.Command), command) {
			return r.Text, true
		}
	}
	return "", false
}

// Join 拼接全部成功输出
func Join(responses []Response) string {
	var b strings.Builder
	for _, r := range responses {
		if !r.Success || r.Text == "" {
			continue
		}
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Retarget 为未携带目标的会话错误补充 hop 路径
func Retarget(err error, target string) error {
	var se *session.Error
	if errors.As(err, &se) && se.Target == "" {
		cp := *se
		cp.Target = target
		return &cp
	}
	return err
}

// Single 构造只含一个原子的分段；present 为 false 时分段为空
func Single(name string, a atom.Atom, present bool) *atom.Section {
	s := atom.NewSection(name, a.Kind())
	if present {
		_ = s.Append(a)
	}
	return s
}

// RawStorePaths 原始数据映射（命令 -> 对象路径）
type RawStorePaths map[string]string

func (r RawStorePaths) Marshal() string {
	if r == nil {
		return "{}"
	}
	b, _ := json.Marshal(r)
	return string(b)
}

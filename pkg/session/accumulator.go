package session

import (
	"regexp"
	"strings"

	"github.com/sshcollectorpro/batchscanner/internal/util"
)

// State 单条命令交互的状态
type State int

const (
	StateIdle State = iota
	StateAwaitingEcho
	StateAccumulating
	StateComplete
	StateTimedOut
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEcho:
		return "awaiting-echo"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	case StateTimedOut:
		return "timed-out"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal 是否已不再接收输入
func (s State) Terminal() bool {
	return s == StateComplete || s == StateTimedOut || s == StateError
}

// Matcher 判断累积输出的末尾是否为提示符
type Matcher interface {
	// Match 返回 tail 最后一行上的提示符文本
	Match(tail string) (string, bool)
}

// ExactPrompt 匹配一个固定提示符，例如 "MH-T265@radio-a>"
type ExactPrompt string

func (p ExactPrompt) Match(tail string) (string, bool) {
	line := lastLine(tail)
	if line != "" && line == strings.TrimSpace(string(p)) {
		return line, true
	}
	return "", false
}

// PromptShape 按形状匹配最后一行
type PromptShape struct {
	re *regexp.Regexp
}

// NewPromptShape 编译 pattern，锚定整行
func NewPromptShape(pattern string) PromptShape {
	return PromptShape{re: regexp.MustCompile(`^(?:` + pattern + `)$`)}
}

func (p PromptShape) Match(tail string) (string, bool) {
	line := lastLine(tail)
	if line != "" && p.re.MatchString(line) {
		return line, true
	}
	return "", false
}

// AnyPrompt 尚未得知确切提示符时使用的通用形状
var AnyPrompt = NewPromptShape(`\S+>`)

func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// tailWindow 每次收到数据后检查提示符的字节窗口
const tailWindow = 512

// Accumulator 从无分帧的字节流中收集单条命令的回显。
// 与传输层无关：无论数据块如何切分，结果都相同。
type Accumulator struct {
	command string
	matcher Matcher
	state   State
	buf     []byte
	prompt  string
}

func NewAccumulator(command string, m Matcher) *Accumulator {
	return &Accumulator{command: command, matcher: m, state: StateIdle}
}

// Start 标记命令已写出
func (a *Accumulator) Start() {
	if a.state != StateIdle {
		return
	}
	if a.command == "" {
		a.state = StateAccumulating
		return
	}
	a.state = StateAwaitingEcho
}

// Feed 追加一个数据块并返回新状态
func (a *Accumulator) Feed(chunk []byte) State {
	if a.state == StateIdle {
		a.Start()
	}
	if a.state.Terminal() || len(chunk) == 0 {
		return a.state
	}
	a.buf = append(a.buf, chunk...)

	if a.state == StateAwaitingEcho {
		// 回显行到第一个换行为止
		if strings.IndexByte(string(a.buf), '\n') < 0 {
			return a.state
		}
		a.state = StateAccumulating
	}

	start := len(a.buf) - tailWindow
	if start < 0 {
		start = 0
	}
	if p, ok := a.matcher.Match(Sanitize(string(a.buf[start:]))); ok {
		a.prompt = p
		a.state = StateComplete
	}
	return a.state
}

// Fail 未见提示符即结束本次交互
func (a *Accumulator) Fail(timedOut bool) {
	if a.state.Terminal() {
		return
	}
	if timedOut {
		a.state = StateTimedOut
	} else {
		a.state = StateError
	}
}

func (a *Accumulator) State() State   { return a.state }
func (a *Accumulator) Prompt() string { return a.prompt }
func (a *Accumulator) Raw() []byte    { return a.buf }

// Response 去掉回显命令与末尾提示符后的文本，换行统一为 "\n"
func (a *Accumulator) Response() string {
	text := Sanitize(util.EnsureUTF8Bytes(a.buf))
	lines := strings.Split(text, "\n")

	if a.state == StateComplete {
		// 丢弃提示符所在行及其后内容
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) == a.prompt {
				lines = lines[:i]
				break
			}
		}
	}
	if len(lines) > 0 && a.command != "" && strings.Contains(lines[0], a.command) {
		lines = lines[1:]
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// Sanitize 去除 ANSI 转义序列、回车以及除换行和制表符外的控制字符
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b {
			skip = true
			continue
		}
		if ch < 0x20 && ch != '\n' && ch != '\t' {
			continue
		}
		if ch == 0x7f {
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sshcollectorpro/batchscanner/pkg/logger"
)

// Shell 远端交互式 shell 的字节流
type Shell interface {
	io.Reader
	io.Writer
	Close() error
}

// Options 会话参数，零值由 DefaultOptions 补齐
type Options struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout" json:"command_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	PromptTimeout  time.Duration `mapstructure:"prompt_timeout" json:"prompt_timeout"`
	PromptRetries  int           `mapstructure:"prompt_retries" json:"prompt_retries"`
	ChunkSize      int           `mapstructure:"chunk_size" json:"chunk_size"`
	ErrorHints     []string      `mapstructure:"error_hints" json:"error_hints"`
	TunnelIn       string        `mapstructure:"tunnel_in" json:"tunnel_in"`
	TunnelOut      string        `mapstructure:"tunnel_out" json:"tunnel_out"`
	LineEnding     string        `mapstructure:"line_ending" json:"line_ending"`
}

// DefaultErrorHints 回显中出现即视为命令失败
var DefaultErrorHints = []string{"Ambiguous command", "CLI syntax error", "Validate failed", "Error:", "Invalid"}

func DefaultOptions() Options {
	return Options{
		CommandTimeout: 30 * time.Second,
		IdleTimeout:    5 * time.Second,
		PromptTimeout:  2 * time.Second,
		PromptRetries:  5,
		ChunkSize:      4096,
		ErrorHints:     DefaultErrorHints,
		TunnelIn:       "connect %s",
		TunnelOut:      "quit",
		LineEnding:     "\r",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.PromptTimeout <= 0 {
		o.PromptTimeout = d.PromptTimeout
	}
	if o.PromptRetries <= 0 {
		o.PromptRetries = d.PromptRetries
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ErrorHints == nil {
		o.ErrorHints = d.ErrorHints
	}
	if o.TunnelIn == "" {
		o.TunnelIn = d.TunnelIn
	}
	if o.TunnelOut == "" {
		o.TunnelOut = d.TunnelOut
	}
	if o.LineEnding == "" {
		o.LineEnding = d.LineEnding
	}
	return o
}

// Command 一次下发的记录
type Command struct {
	Text      string        `json:"text"`
	TargetID  string        `json:"target_id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Response  string        `json:"response"`
	Error     string        `json:"error,omitempty"`
	Kind      Kind          `json:"kind,omitempty"`
}

var errNotConnected = errors.New("not connected")

// Session 设备上独占的一个交互式 shell，以及经它隧道进入的所有设备
// 非并发安全
type Session struct {
	address   string
	opts      Options
	shell     Shell
	stream    *stream
	connected bool
	banner    string
	root      Frame
	stack     TunnelStack
	commands  []Command
	lastError error
}

// New 返回 address 的未连接会话
func New(address string, opts Options) *Session {
	return &Session{address: address, opts: opts.withDefaults()}
}

// Attach 接管 shell，等待首个提示符并推导设备身份；失败时关闭 shell
func (s *Session) Attach(ctx context.Context, shell Shell, banner string) error {
	s.shell = shell
	s.stream = newStream(shell, s.opts.ChunkSize)
	s.banner = banner
	s.root.Identity = DeriveIdentity(banner, "")

	prompt, greeting, err := s.detectPrompt(ctx)
	if err != nil {
		s.teardown(err)
		return err
	}
	if strings.TrimSpace(s.banner) == "" {
		s.banner = greeting
	}
	s.root.Prompt = prompt
	s.root.Identity = DeriveIdentity(s.banner, prompt)
	s.root.Name = s.root.Identity.Name
	s.connected = true

	if s.root.Identity.Model == "" {
		if cmd := s.Send(ctx, "show inventory 1"); cmd.Success {
			s.root.Identity = IdentityFromInventory(s.root.Identity, cmd.Response)
		}
	}
	logger.Debug("Session attached", "target", s.TargetID(), "prompt", prompt,
		"model", s.root.Identity.Model, "family", s.root.Identity.Family)
	return nil
}

func (s *Session) detectPrompt(ctx context.Context) (string, string, error) {
	// 设备登录后通常会主动输出提示符
	acc := NewAccumulator("", AnyPrompt)
	acc.Start()
	err := s.await(ctx, acc, s.opts.PromptTimeout)
	greeting := acc.Response()
	if err == nil {
		return acc.Prompt(), greeting, nil
	}
	if !IsKind(err, KindTimeout) {
		return "", greeting, err
	}
	for i := 0; i < s.opts.PromptRetries; i++ {
		if ctx.Err() != nil {
			return "", greeting, TimeoutError("prompt", s.address, ctx.Err())
		}
		acc, err = s.exchange(ctx, "", AnyPrompt, s.opts.PromptTimeout)
		if err == nil {
			return acc.Prompt(), greeting, nil
		}
		if !IsKind(err, KindTimeout) {
			return "", greeting, err
		}
	}
	return "", greeting, ProtocolError("prompt", s.address,
		fmt.Errorf("no recognisable prompt after %d attempts", s.opts.PromptRetries))
}

// exchange 写入 text 并等待 m 匹配
func (s *Session) exchange(ctx context.Context, text string, m Matcher, idle time.Duration) (*Accumulator, error) {
	target := s.TargetID()
	acc := NewAccumulator(text, m)
	if !s.stream.drain() {
		acc.Fail(false)
		return acc, ClassifyDialError("send", target, streamErr(s.stream.err))
	}
	if _, err := io.WriteString(s.shell, text+s.opts.LineEnding); err != nil {
		acc.Fail(false)
		return acc, ClassifyDialError("send", target, err)
	}
	acc.Start()
	return acc, s.await(ctx, acc, idle)
}

// await 持续向 acc 输入数据直到完成
// 每个数据块都会重置空闲计时器，命令超时限制整体等待时间
func (s *Session) await(ctx context.Context, acc *Accumulator, idle time.Duration) error {
	target := s.TargetID()
	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-s.stream.chunks:
			if !ok {
				acc.Fail(false)
				return ClassifyDialError("read", target, streamErr(s.stream.err))
			}
			timer.Reset(idle)
			if acc.Feed(chunk) == StateComplete {
				return nil
			}
		case <-timer.C:
			acc.Fail(true)
			return TimeoutError("read", target, fmt.Errorf("no prompt after %s of inactivity", idle))
		case <-ctx.Done():
			acc.Fail(true)
			return TimeoutError("read", target, ctx.Err())
		}
	}
}

func streamErr(err error) error {
	if err == nil {
		return io.EOF
	}
	return err
}

// Send 在当前 hop 上下发一条命令并记录
func (s *Session) Send(ctx context.Context, text string) Command {
	cmd, _, _ := s.send(ctx, text, ExactPrompt(s.current().Prompt))
	return cmd
}

func (s *Session) send(ctx context.Context, text string, m Matcher) (Command, *Accumulator, error) {
	target := s.TargetID()
	cmd := Command{Text: text, TargetID: target, Timestamp: time.Now()}

	var acc *Accumulator
	var err error
	if !s.connected {
		err = ConnectionError("send", target, errNotConnected)
	} else {
		acc, err = s.exchange(ctx, text, m, s.opts.IdleTimeout)
		cmd.Response = acc.Response()
	}
	cmd.Duration = time.Since(cmd.Timestamp)

	if err != nil {
		cmd.Kind = KindOf(err)
		cmd.Error = fmt.Sprintf("Command: '%s' to '%s' raised an error: %v", text, target, err)
		// 回显中途断开的流无法重新对齐
		if s.connected {
			s.teardown(err)
		}
	} else if hint := s.errorHint(cmd.Response); hint != "" {
		cmd.Error = fmt.Sprintf("Command: '%s' to '%s' raised an error: %s", text, target, hint)
	} else {
		cmd.Success = true
	}

	logger.DebugCommandOutput(target, text, cmd.Response, 5)
	s.commands = append(s.commands, cmd)
	return cmd, acc, err
}

func (s *Session) errorHint(response string) string {
	for _, line := range strings.Split(response, "\n") {
		for _, hint := range s.opts.ErrorHints {
			if hint != "" && strings.Contains(line, hint) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// HopIn 建立到 child 的隧道，失败时隧道栈不变
func (s *Session) HopIn(ctx context.Context, child string) error {
	target := s.TargetID()
	if !s.connected {
		return TunnelError("hop-in", target, errNotConnected)
	}
	cur := s.current()
	_, acc, err := s.send(ctx, fmt.Sprintf(s.opts.TunnelIn, child), AnyPrompt)
	if err != nil {
		return TunnelError("hop-in", target, err)
	}
	prompt := acc.Prompt()
	if prompt == cur.Prompt {
		return TunnelError("hop-in", target, fmt.Errorf("unable to tunnel into '%s'", child))
	}
	id := DeriveIdentity("", prompt)
	if id.Name != child {
		// 进入了非预期设备，先退回再报错
		if _, _, err := s.send(ctx, s.opts.TunnelOut, ExactPrompt(cur.Prompt)); err != nil {
			return TunnelError("hop-in", target, fmt.Errorf("unexpected prompt '%s' and no way back: %w", prompt, err))
		}
		return TunnelError("hop-in", target, fmt.Errorf("unable to tunnel into '%s': reached '%s'", child, prompt))
	}
	s.stack.Push(Frame{Name: child, Prompt: prompt, Identity: id})
	logger.Debug("Tunnel opened", "target", s.TargetID())
	return nil
}

// HopOut 关闭最内层隧道，失败时隧道栈不变
func (s *Session) HopOut(ctx context.Context) error {
	target := s.TargetID()
	if !s.connected {
		return TunnelError("hop-out", target, errNotConnected)
	}
	if s.stack.Depth() == 0 {
		return TunnelError("hop-out", target, errors.New("already at top hierarchy"))
	}
	parent := s.stack.Parent(s.root)
	_, acc, err := s.send(ctx, s.opts.TunnelOut, AnyPrompt)
	if err != nil {
		return TunnelError("hop-out", target, err)
	}
	if acc.Prompt() != parent.Prompt {
		return TunnelError("hop-out", target, fmt.Errorf("expected prompt '%s', got '%s'", parent.Prompt, acc.Prompt()))
	}
	s.stack.Pop()
	logger.Debug("Tunnel closed", "target", s.TargetID())
	return nil
}

// Close 结束会话并清空 hop 路径
func (s *Session) Close() error {
	s.stack.Reset()
	return s.teardown(nil)
}

func (s *Session) teardown(cause error) error {
	var err error
	if s.shell != nil {
		err = s.shell.Close()
		s.shell = nil
	}
	s.connected = false
	if cause != nil {
		s.lastError = cause
	}
	return err
}

// Fail 记录 shell 建立之前发生的失败
func (s *Session) Fail(banner string, err error) {
	s.banner = banner
	s.root.Identity = DeriveIdentity(banner, "")
	s.connected = false
	s.lastError = err
}

func (s *Session) current() Frame {
	if f, ok := s.stack.Top(); ok {
		return f
	}
	return s.root
}

func (s *Session) rootName() string {
	if s.root.Name != "" {
		return s.root.Name
	}
	return s.address
}

// TargetID hop 路径，例如 "home → child1 → child2"
func (s *Session) TargetID() string { return s.stack.Path(s.rootName()) }

func (s *Session) Address() string    { return s.address }
func (s *Session) Connected() bool    { return s.connected }
func (s *Session) Banner() string     { return s.banner }
func (s *Session) Prompt() string     { return s.current().Prompt }
func (s *Session) Depth() int         { return s.stack.Depth() }
func (s *Session) LastError() error   { return s.lastError }
func (s *Session) Identity() Identity { return s.current().Identity }

// RootIdentity 直连设备的身份
func (s *Session) RootIdentity() Identity { return s.root.Identity }

// Commands 命令记录的副本
func (s *Session) Commands() []Command { return append([]Command(nil), s.commands...) }

func (s *Session) Options() Options { return s.opts }

// Tune 替换会话参数（例如得知设备族之后），零值字段使用 DefaultOptions
func (s *Session) Tune(opts Options) { s.opts = opts.withDefaults() }

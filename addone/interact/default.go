package interact

import (
	"strings"
	"time"

	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// InteractDefaults 定义交互层的默认运行参数
type InteractDefaults struct {
	CommandTimeout time.Duration
	IdleTimeout    time.Duration
	PromptRetries  int
	// ErrorHints 响应中出现即判定命令失败
	ErrorHints []string
	// TunnelIn 进入下挂设备的命令格式，%s 为设备名称；为空表示不支持隧道
	TunnelIn  string
	TunnelOut string
}

// CommandTransformInput 输入命令
type CommandTransformInput struct {
	Commands []string
}

// CommandTransformOutput 输出转换后的命令
type CommandTransformOutput struct {
	Commands []string
}

// InteractPlugin 交互插件接口
type InteractPlugin interface {
	// Name 插件名称（default、EH、BU、TU、TG）
	Name() string
	// Defaults 返回插件的默认运行参数
	Defaults() InteractDefaults
	// TransformCommands 根据设备族特性转换脚本命令
	TransformCommands(in CommandTransformInput) CommandTransformOutput
}

// DefaultPlugin 系统默认交互插件
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Defaults() InteractDefaults {
	return InteractDefaults{
		CommandTimeout: 30 * time.Second,
		IdleTimeout:    5 * time.Second,
		PromptRetries:  5,
		ErrorHints:     session.DefaultErrorHints,
	}
}

func (p *DefaultPlugin) TransformCommands(in CommandTransformInput) CommandTransformOutput {
	return CommandTransformOutput{Commands: CleanScript(in.Commands)}
}

// CleanScript 去除空行与 # 注释行，并去掉首尾空白
func CleanScript(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Options 将设备族默认值填入 base 中未显式配置的字段
func Options(family string, base session.Options) session.Options {
	d := Get(family).Defaults()
	if base.CommandTimeout <= 0 {
		base.CommandTimeout = d.CommandTimeout
	}
	if base.IdleTimeout <= 0 {
		base.IdleTimeout = d.IdleTimeout
	}
	if base.PromptRetries <= 0 {
		base.PromptRetries = d.PromptRetries
	}
	if base.ErrorHints == nil {
		base.ErrorHints = d.ErrorHints
	}
	if base.TunnelIn == "" {
		base.TunnelIn = d.TunnelIn
	}
	if base.TunnelOut == "" {
		base.TunnelOut = d.TunnelOut
	}
	return base
}

// SupportsTunnel 设备族是否可以隧道进入下挂设备
func SupportsTunnel(family string) bool {
	return Get(family).Defaults().TunnelIn != ""
}

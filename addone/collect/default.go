package collect

import (
	"fmt"
	"time"

	"github.com/sshcollectorpro/batchscanner/pkg/atom"
)

// CollectPlugin 采集插件接口
type CollectPlugin interface {
	Name() string
	// ShowCommands 返回 show 动作下发的命令
	ShowCommands() []string
	// TimeCommands 返回设置设备时间与日期的两条命令
	TimeCommands(t time.Time) []string
	// Parse 将命令输出解析为文档；单个分段失败记录在 Document.Errors 中
	Parse(ctx ParseContext, responses []Response) (*atom.Document, error)
}

// SubordinateLister 支持隧道下挂设备的插件实现此接口
type SubordinateLister interface {
	DiscoveryCommands() []string
	Subordinates(ctx ParseContext, responses []Response) []string
}

// DefaultPlugin 未识别设备族的默认插件，不下发命令也不解析
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) ShowCommands() []string { return nil }

func (p *DefaultPlugin) TimeCommands(t time.Time) []string { return nil }

func (p *DefaultPlugin) Parse(ctx ParseContext, responses []Response) (*atom.Document, error) {
	return atom.NewDocument(ctx.TargetID, ctx.Identity), fmt.Errorf("no parser for family %q", ctx.Identity.Family)
}

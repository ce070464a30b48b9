package tg

import (
	"time"

	"github.com/sshcollectorpro/batchscanner/addone/interact"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// Plugin 为 MultiHaul TG 交互插件：show 输出较长，支持 connect 隧道进入 CN
type Plugin struct{}

func (p *Plugin) Name() string { return string(session.FamilyTG) }

func (p *Plugin) Defaults() interact.InteractDefaults {
	d := (&interact.DefaultPlugin{}).Defaults()
	d.CommandTimeout = 60 * time.Second
	d.IdleTimeout = 8 * time.Second
	d.TunnelIn = "connect %s"
	d.TunnelOut = "quit"
	return d
}

func (p *Plugin) TransformCommands(in interact.CommandTransformInput) interact.CommandTransformOutput {
	return interact.CommandTransformOutput{Commands: interact.CleanScript(in.Commands)}
}

func init() {
	interact.Register(string(session.FamilyTG), &Plugin{})
}

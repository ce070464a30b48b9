package eh

import (
	"github.com/sshcollectorpro/batchscanner/addone/interact"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// Plugin 为 EtherHaul 与经典 MultiHaul（BU/TU）交互插件，不支持隧道
type Plugin struct {
	family session.Family
}

func (p *Plugin) Name() string { return string(p.family) }

func (p *Plugin) Defaults() interact.InteractDefaults {
	return (&interact.DefaultPlugin{}).Defaults()
}

func (p *Plugin) TransformCommands(in interact.CommandTransformInput) interact.CommandTransformOutput {
	return interact.CommandTransformOutput{Commands: interact.CleanScript(in.Commands)}
}

func init() {
	for _, f := range []session.Family{session.FamilyEH, session.FamilyBU, session.FamilyTU} {
		interact.Register(string(f), &Plugin{family: f})
	}
}

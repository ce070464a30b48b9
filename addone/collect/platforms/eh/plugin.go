package eh

import (
	"errors"
	"fmt"
	"time"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/parser"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// builder 从扁平方言文档构造一个分段
type builder func(ctx collect.ParseContext, root *parser.Node, responses []collect.Response) *atom.Section

// Plugin 为 EtherHaul 与经典 MultiHaul（BU/TU）设备族采集插件，三者共用扁平方言解析
type Plugin struct {
	family   session.Family
	commands []string
	builders []builder
}

func (p *Plugin) Name() string { return string(p.family) }

func (p *Plugin) ShowCommands() []string { return append([]string(nil), p.commands...) }

func (p *Plugin) TimeCommands(t time.Time) []string {
	return []string{
		"set system time " + t.Format("15:04:05"),
		"set system date " + t.Format("2006.01.02"),
	}
}

// Parse 合并全部 show 输出为一个扁平文档后逐分段构造
func (p *Plugin) Parse(ctx collect.ParseContext, responses []collect.Response) (*atom.Document, error) {
	doc := atom.NewDocument(ctx.TargetID, ctx.Identity)
	text := collect.Join(responses)
	if text == "" {
		return doc, session.ParseError("show", ctx.TargetID, errors.New("no show output"))
	}

	root, errs := parser.Load(text, parser.Flat)
	for _, err := range errs {
		doc.Fail(collect.Retarget(err, ctx.TargetID))
	}
	if doc.Identity.Name == "" {
		doc.Identity.Name = root.Path("system", "name").Scalar()
	}
	for _, b := range p.builders {
		doc.Add(b(ctx, root, responses))
	}
	return doc, nil
}

func ethCommands(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("show eth eth%d", i))
	}
	return out
}

// NewEH EtherHaul：四个以太口，带 rf 与 rf-debug
func NewEH() *Plugin {
	cmds := []string{"show system", "show sw", "show inventory 1", "show rf", "show rf-debug"}
	cmds = append(cmds, ethCommands(4)...)
	cmds = append(cmds, "show lldp-remote", "show log")
	return &Plugin{
		family:   session.FamilyEH,
		commands: cmds,
		builders: []builder{system, software, inventory, ethernet, radio, neighbors, event},
	}
}

// NewBU MultiHaul 基站单元，附带下挂终端列表
func NewBU() *Plugin {
	cmds := []string{"show system", "show sw", "show inventory 1"}
	cmds = append(cmds, ethCommands(3)...)
	cmds = append(cmds, "show lldp-remote", "show base-unit", "show remote-terminal-unit", "show log")
	return &Plugin{
		family:   session.FamilyBU,
		commands: cmds,
		builders: []builder{system, software, inventory, ethernet, neighbors, baseUnit, remoteTerminals, event},
	}
}

// NewTU MultiHaul 终端单元
func NewTU() *Plugin {
	cmds := []string{"show system", "show sw", "show inventory 1"}
	cmds = append(cmds, ethCommands(3)...)
	cmds = append(cmds, "show lldp-remote", "show terminal-unit", "show log")
	return &Plugin{
		family:   session.FamilyTU,
		commands: cmds,
		builders: []builder{system, software, inventory, ethernet, neighbors, terminalUnit, event},
	}
}

func init() {
	for _, p := range []*Plugin{NewEH(), NewBU(), NewTU()} {
		collect.Register(p.Name(), p)
	}
}

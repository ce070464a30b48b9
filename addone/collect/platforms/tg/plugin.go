package tg

import (
	"errors"
	"time"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/parser"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// Plugin 为 MultiHaul TG 设备族采集插件（大括号方言）
type Plugin struct{}

func (p *Plugin) Name() string { return string(session.FamilyTG) }

// ShowCommands TG 设备一次 show 输出完整配置与状态
func (p *Plugin) ShowCommands() []string { return []string{"show"} }

func (p *Plugin) TimeCommands(t time.Time) []string {
	return []string{
		"set time " + t.Format("15:04:05"),
		"set date " + t.Format("2006-01-02"),
	}
}

func (p *Plugin) DiscoveryCommands() []string {
	return []string{"show radio-common", "show radio-dn"}
}

// Subordinates 返回处于 active 状态且对端类型为 cn 的链路名称
func (p *Plugin) Subordinates(ctx collect.ParseContext, responses []collect.Response) []string {
	root, _ := parser.Load(collect.Join(responses), parser.Brace)
	var names []string
	for _, a := range links(root).Atoms {
		l := a.(atom.Link)
		if l.Status == atom.LinkActive && l.Type == "cn" && l.Remote != "" {
			names = append(names, l.Remote)
		}
	}
	return names
}

// Parse 解析 show 输出；无法解析的分段记录错误并保留为空分段
func (p *Plugin) Parse(ctx collect.ParseContext, responses []collect.Response) (*atom.Document, error) {
	doc := atom.NewDocument(ctx.TargetID, ctx.Identity)
	text, ok := collect.Lookup(responses, "show")
	if !ok {
		text = collect.Join(responses)
	}
	if text == "" {
		return doc, session.ParseError("show", ctx.TargetID, errors.New("no show output"))
	}

	root, errs := parser.Load(text, parser.Brace)
	for _, err := range errs {
		doc.Fail(collect.Retarget(err, ctx.TargetID))
	}
	if doc.Identity.Name == "" {
		doc.Identity.Name = root.Path("system").Str("name")
	}

	node := nodeAtom(root)
	doc.Add(interfaces(root))
	doc.Add(ips(root))
	doc.Add(inventory(root))
	doc.Add(collect.Single("Node", node, root.Get("radio-common") != nil || root.Get("radio-dn") != nil))
	doc.Add(sectors(root, node))
	doc.Add(links(root))
	doc.Add(collect.Single("System", systemAtom(root), root.Get("system") != nil))
	return doc, nil
}

func init() { collect.Register(string(session.FamilyTG), &Plugin{}) }

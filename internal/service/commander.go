package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/addone/interact"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/pkg/metrics"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// ConnState 设备连接状态
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateUnreachable  ConnState = "unreachable"
)

// CommanderOptions 单台设备的动作参数
type CommanderOptions struct {
	// Session 显式配置的会话参数，零值字段由设备族默认值补齐
	Session session.Options
	// Subordinates 是否隧道进入下挂设备
	Subordinates bool
	LogTail      int
}

// Commander 在一台设备（及其下挂设备）上执行 show / set-time / script 动作，
// 并持有该设备的全部结果。不可并发使用。
type Commander struct {
	target Target
	opts   CommanderOptions
	sess   *session.Session
	state  ConnState
	docs   []*atom.Document
	errs   []error
}

// Connect 建立会话并识别设备；失败不返回错误，而是进入 Unreachable 状态
func Connect(ctx context.Context, dialer session.Dialer, t Target, opts CommanderOptions) *Commander {
	c := &Commander{target: t, opts: opts, state: StateConnecting}
	sess, err := session.Dial(ctx, dialer, t.Address, t.Username, t.Password, opts.Session)
	c.sess = sess
	if err != nil {
		c.state = StateUnreachable
		c.errs = append(c.errs, err)
		logger.Warn("Device unreachable", "address", t.Address, "error", err)
		return c
	}

	// 设备族确定后再套用该族的超时、错误提示与隧道命令
	family := string(sess.RootIdentity().Family)
	sess.Tune(interact.Options(family, opts.Session))
	c.state = StateConnected
	logger.Info("Device connected", "address", t.Address, "name", sess.RootIdentity().Name, "family", family)
	return c
}

func (c *Commander) family() string { return string(c.sess.Identity().Family) }

// alive 会话仍可用；传输层中断时状态随之变为 Disconnected
func (c *Commander) alive() bool {
	if c.state != StateConnected {
		return false
	}
	if !c.sess.Connected() {
		c.state = StateDisconnected
		if err := c.sess.LastError(); err != nil {
			c.fail(err)
		}
		return false
	}
	return true
}

func (c *Commander) fail(err error) {
	if err == nil {
		return
	}
	for _, e := range c.errs {
		if e == err {
			return
		}
	}
	c.errs = append(c.errs, err)
}

// sendAll 依次下发命令，单条失败不影响后续命令
func (c *Commander) sendAll(ctx context.Context, cmds []string) []session.Command {
	out := make([]session.Command, 0, len(cmds))
	family := c.family()
	for _, text := range cmds {
		if !c.alive() {
			break
		}
		cmd := c.sess.Send(ctx, text)
		metrics.CommandsSent.WithLabelValues(family, boolLabel(cmd.Success)).Inc()
		out = append(out, cmd)
	}
	c.alive()
	return out
}

// subordinates 执行发现命令并返回下挂设备名称；设备族不支持隧道时返回 nil
func (c *Commander) subordinates(ctx context.Context) []string {
	if !c.opts.Subordinates || c.sess.Depth() > 0 || !interact.SupportsTunnel(c.family()) {
		return nil
	}
	lister, ok := collect.Get(c.family()).(collect.SubordinateLister)
	if !ok {
		return nil
	}
	cmds := c.sendAll(ctx, lister.DiscoveryCommands())
	names := lister.Subordinates(c.parseContext(), collect.FromCommands(cmds))
	logger.Debug("Subordinates discovered", "target", c.sess.TargetID(), "names", names)
	return names
}

// eachSubordinate 逐个进入下挂设备执行 fn（深度最多一层）。进入失败的设备被跳过；
// 退出失败时隧道状态未知，遍历停止。
func (c *Commander) eachSubordinate(ctx context.Context, names []string, fn func()) {
	for _, name := range names {
		if !c.alive() {
			return
		}
		if err := c.sess.HopIn(ctx, name); err != nil {
			metrics.Hops.WithLabelValues("failed").Inc()
			c.fail(err)
			logger.Warn("Tunnel into subordinate failed", "target", c.sess.TargetID(), "child", name, "error", err)
			continue
		}
		metrics.Hops.WithLabelValues("ok").Inc()
		fn()
		if !c.alive() {
			return
		}
		if err := c.sess.HopOut(ctx); err != nil {
			c.alive()
			c.fail(err)
			logger.Error("Tunnel out of subordinate failed; stopping traversal", "target", c.sess.TargetID(), "error", err)
			return
		}
	}
}

func (c *Commander) parseContext() collect.ParseContext {
	return collect.ParseContext{
		TargetID: c.sess.TargetID(),
		Identity: c.sess.Identity(),
		LogTail:  c.opts.LogTail,
	}
}

// showHop 在当前 hop 下发 show 命令并解析为一个文档
func (c *Commander) showHop(ctx context.Context) *atom.Document {
	plugin := collect.Get(c.family())
	cmds := c.sendAll(ctx, plugin.ShowCommands())
	doc, err := plugin.Parse(c.parseContext(), collect.FromCommands(cmds))
	if err != nil {
		c.fail(err)
		logger.Warn("Show output not parsed", "target", c.sess.TargetID(), "error", err)
		return nil
	}
	for _, e := range doc.Errors {
		c.fail(e)
	}
	for _, s := range doc.Sections {
		metrics.Atoms.WithLabelValues(s.Name).Add(float64(s.Len()))
	}
	c.docs = append(c.docs, doc)
	return doc
}

// Show 采集当前设备，必要时再采集每台下挂设备；返回本次得到的文档
func (c *Commander) Show(ctx context.Context) []*atom.Document {
	if !c.alive() {
		return nil
	}
	before := len(c.docs)
	c.showHop(ctx)
	names := c.subordinates(ctx)
	c.eachSubordinate(ctx, names, func() { c.showHop(ctx) })
	return append([]*atom.Document(nil), c.docs[before:]...)
}

// SetTimeOfDay 将本机时间加上 offsetHours 后写入设备（时间与日期两条命令）
func (c *Commander) SetTimeOfDay(ctx context.Context, offsetHours float64) []session.Command {
	if !c.alive() {
		return nil
	}
	at := time.Now().Add(time.Duration(offsetHours * float64(time.Hour)))
	out := c.sendAll(ctx, collect.Get(c.family()).TimeCommands(at))
	names := c.subordinates(ctx)
	c.eachSubordinate(ctx, names, func() {
		out = append(out, c.sendAll(ctx, collect.Get(c.family()).TimeCommands(at))...)
	})
	return out
}

// RunScript 逐行下发脚本，失败的行不会中断后续行
func (c *Commander) RunScript(ctx context.Context, lines []string) []session.Command {
	if !c.alive() {
		return nil
	}
	script := func() []session.Command {
		in := interact.CommandTransformInput{Commands: lines}
		return c.sendAll(ctx, interact.Get(c.family()).TransformCommands(in).Commands)
	}
	out := script()
	names := c.subordinates(ctx)
	c.eachSubordinate(ctx, names, func() { out = append(out, script()...) })
	return out
}

// Disconnect 关闭传输并清空隧道栈
func (c *Commander) Disconnect() {
	if c.sess != nil {
		_ = c.sess.Close()
	}
	if c.state != StateUnreachable {
		c.state = StateDisconnected
	}
}

func (c *Commander) Target() Target   { return c.target }
func (c *Commander) State() ConnState { return c.state }

// Connected 会话当前是否可用
func (c *Commander) Connected() bool { return c.state == StateConnected && c.sess.Connected() }

// Identity 直连设备的身份信息
func (c *Commander) Identity() session.Identity { return c.sess.RootIdentity() }

func (c *Commander) Commands() []session.Command { return c.sess.Commands() }

func (c *Commander) Documents() []*atom.Document { return append([]*atom.Document(nil), c.docs...) }

func (c *Commander) Errors() []error { return append([]error(nil), c.errs...) }

// LastError 最近一次错误
func (c *Commander) LastError() error {
	if len(c.errs) > 0 {
		return c.errs[len(c.errs)-1]
	}
	return c.sess.LastError()
}

// ReportRow 每台设备或每个 hop 一行结果
type ReportRow struct {
	Address         string    `json:"address"`
	TargetID        string    `json:"target_id"`
	Name            string    `json:"name"`
	Model           string    `json:"model"`
	SerialNumber    string    `json:"serial_number"`
	SoftwareVersion string    `json:"software_version"`
	Family          string    `json:"family"`
	State           ConnState `json:"state"`
	Connected       bool      `json:"connected"`
	Depth           int       `json:"depth"`
	Commands        int       `json:"commands"`
	Failed          int       `json:"failed"`
	Atoms           int       `json:"atoms"`
	LastError       string    `json:"last_error"`
	Errors          []string  `json:"errors"`
}

// Report 汇总结果行：未连接或没有文档时只有直连设备一行
func (c *Commander) Report() []ReportRow {
	root := c.row(c.sess.Address(), c.sess.RootIdentity())
	root.TargetID = c.rootTarget()
	if len(c.docs) == 0 {
		c.countCommands(&root, root.TargetID)
		root.Errors = errorStrings(c.errs)
		if err := c.LastError(); err != nil {
			root.LastError = err.Error()
		}
		return []ReportRow{root}
	}

	rows := make([]ReportRow, 0, len(c.docs))
	for _, d := range c.docs {
		r := c.row(c.sess.Address(), d.Identity)
		r.TargetID = d.TargetID
		r.Name = d.Name()
		r.Depth = strings.Count(d.TargetID, session.PathSeparator)
		r.Atoms = d.AtomCount()
		c.countCommands(&r, d.TargetID)
		r.Errors = errorStrings(c.errorsFor(d.TargetID))
		if n := len(r.Errors); n > 0 {
			r.LastError = r.Errors[n-1]
		}
		rows = append(rows, r)
	}
	return rows
}

func (c *Commander) row(address string, id session.Identity) ReportRow {
	return ReportRow{
		Address:         address,
		Name:            id.Name,
		Model:           id.Model,
		SerialNumber:    id.SerialNumber,
		SoftwareVersion: id.SoftwareVersion,
		Family:          string(id.Family),
		State:           c.state,
		Connected:       c.Connected(),
	}
}

// rootTarget 直连设备的 hop 路径（设备名，未知时为地址）
func (c *Commander) rootTarget() string {
	if name := c.sess.RootIdentity().Name; name != "" && c.state != StateUnreachable {
		return name
	}
	return c.sess.Address()
}

func (c *Commander) countCommands(r *ReportRow, targetID string) {
	for _, cmd := range c.sess.Commands() {
		if cmd.TargetID != targetID {
			continue
		}
		r.Commands++
		if !cmd.Success {
			r.Failed++
		}
	}
}

// errorsFor 返回归属于 targetID 的错误；隧道错误记录在父设备上
func (c *Commander) errorsFor(targetID string) []error {
	var out []error
	for _, err := range c.errs {
		var se *session.Error
		if errors.As(err, &se) && se.Target != "" {
			owner := se.Target
			if owner == c.sess.Address() {
				owner = c.rootTarget()
			}
			if owner != targetID {
				continue
			}
		}
		out = append(out, err)
	}
	return out
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

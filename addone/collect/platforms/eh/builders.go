package eh

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/parser"
)

// DefaultLogTail 未指定时事件日志保留的行数
const DefaultLogTail = 2

// maxTerminals 基站单元最多下挂的终端数
const maxTerminals = 8

const version = `\d+\.\d+\.\d+`

// show sw 表格：Running/Scheduled 两列决定 active 与 offline bank
var (
	swActiveRe = regexp.MustCompile(`(?m)^\d\s*\S*?(` + version + `).*yes\s+no` +
		`|^\d\s*\S*?(` + version + `).*yes\s+yes` +
		`|^\d\s*\S*?(` + version + `).*wait-accept\s+no` +
		`|^\d\s*\S*?(` + version + `).*wait-accept\s+yes`)
	swOfflineRe = regexp.MustCompile(`(?m)^\d\s*\S*?(` + version + `).*no\s+no` +
		`|^\d\s*\S*?(` + version + `).*no\s+yes`)
)

func number(n *parser.Node) atom.Number {
	v, ok := n.Integer()
	return atom.Number{Value: v, Valid: ok}
}

// lastGroup 返回最后一个非空捕获组
func lastGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	for i := len(m) - 1; i > 0; i-- {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}

func system(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	sys := root.Get("system")
	a := atom.Status{
		Description: sys.Str("description"),
		Name:        sys.Str("name"),
		Location:    sys.Str("location"),
		Date:        sys.Str("date"),
		Time:        sys.Str("time"),
	}
	if up := sys.Str("uptime"); up != "" {
		a.UpDays = collect.UptimeDays(up)
	}
	return collect.Single("System", a, sys != nil)
}

func software(_ collect.ParseContext, _ *parser.Node, responses []collect.Response) *atom.Section {
	text, ok := collect.Lookup(responses, "show sw")
	a := atom.Software{
		Active:  lastGroup(swActiveRe, text),
		Offline: lastGroup(swOfflineRe, text),
	}
	return collect.Single("Software", a, ok)
}

func inventory(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	item := root.Path("inventory", "1")
	a := atom.Inventory{
		Serial:     item.Str("serial"),
		Model:      item.Str("desc"),
		HwRevision: item.Str("hw-rev"),
		SwVersion:  collect.CanonicalVersion(item.Str("sw-rev"), false),
	}
	return collect.Single("Inventory", a, item != nil)
}

func ethernet(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	s := atom.NewSection("Ethernet", atom.KindEthernet)
	for _, m := range root.Get("eth").Members() {
		_ = s.Append(atom.Ethernet{
			Port:  m.Key,
			Oper:  m.Node.Str("operational"),
			Speed: m.Node.Str("eth-act-type"),
		})
	}
	return s
}

func radio(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	rf := root.Get("rf")
	debug := root.Get("rf-debug")
	freq := rf.Get("frequency")
	if freq.IsNull() {
		freq = rf.Get("tx-frequency")
	}
	a := atom.Radio{
		Oper:      rf.Str("operational"),
		Cinr:      number(rf.Get("cinr")),
		Rssi:      number(rf.Get("rssi")),
		Frequency: number(freq),
		Mode:      rf.Str("mode"),
		TxPower:   number(debug.Get("tx-power")),
		Distance:  number(debug.Get("link-length")),
	}
	return collect.Single("Radio", a, rf != nil)
}

func neighbors(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	s := atom.NewSection("Neighbors", atom.KindNeighbor)
	for _, port := range root.Get("lldp-remote").Members() {
		for _, idx := range port.Node.Members() {
			_ = s.Append(atom.Neighbor{
				Port:      port.Key,
				Index:     idx.Key,
				ChassisID: idx.Node.Str("chassis-id"),
				SysName:   idx.Node.Str("sys-name"),
			})
		}
	}
	return s
}

func baseUnit(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	bu := root.Get("base-unit")
	a := atom.BaseUnit{
		Mac:       bu.Str("self-mac"),
		Frequency: number(bu.Get("frequency")),
		Guest:     bu.Str("guest-connection"),
	}
	return collect.Single("BaseUnit", a, bu != nil)
}

func connectDays(n *parser.Node) string {
	if up := n.Str("connect-time"); up != "" {
		return collect.UptimeDays(up)
	}
	return ""
}

// remoteTerminals 列出基站单元下挂的终端（索引 1..8）
func remoteTerminals(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	s := atom.NewSection("Terminals", atom.KindTerminal)
	rtu := root.Get("remote-terminal-unit")
	for idx := 1; idx <= maxTerminals; idx++ {
		key := strconv.Itoa(idx)
		n := rtu.Get(key)
		if n == nil {
			continue
		}
		_ = s.Append(atom.Terminal{
			Index:       key,
			Mac:         n.Str("mac"),
			Status:      n.Str("status"),
			Association: n.Str("association"),
			TxMcs:       number(n.Get("tx-mcs")),
			Rssi:        number(n.Get("rssi")),
			SigQuality:  number(n.Get("signal-quality")),
			ConnectDays: connectDays(n),
		})
	}
	return s
}

func terminalUnit(_ collect.ParseContext, root *parser.Node, _ []collect.Response) *atom.Section {
	tu := root.Get("terminal-unit")
	a := atom.Terminal{
		Mac:         tu.Str("self-mac"),
		Status:      tu.Str("status"),
		BaseMac:     tu.Str("base-unit-mac"),
		TxMcs:       number(tu.Get("tx-mcs")),
		Rssi:        number(tu.Get("rssi")),
		SigQuality:  number(tu.Get("signal-quality")),
		ConnectDays: connectDays(tu),
	}
	return collect.Single("Terminals", a, tu != nil)
}

// event 取 show log 的末尾若干行，以 "; " 拼接
func event(ctx collect.ParseContext, _ *parser.Node, responses []collect.Response) *atom.Section {
	text, ok := collect.Lookup(responses, "show log")
	tail := ctx.LogTail
	if tail <= 0 {
		tail = DefaultLogTail
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(text), "\n") {
		lines = append(lines, strings.TrimSpace(l))
	}
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return collect.Single("Event", atom.Event{Log: strings.Join(lines, "; ")}, ok)
}

package tg

import (
	"net/netip"
	"strings"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/parser"
)

const unspecified = "unspecified"

func number(n *parser.Node) atom.Number {
	v, ok := n.Integer()
	return atom.Number{Value: v, Valid: ok}
}

func unspec(s string) string {
	if strings.EqualFold(s, unspecified) {
		return "unspec"
	}
	return s
}

// name 优先取 key 中的名称后缀，其次取 name 字段
func name(m parser.Match, field string) string {
	if m.Suffix != "" {
		return m.Suffix
	}
	return m.Node.Str(field)
}

func interfaces(root *parser.Node) *atom.Section {
	s := atom.NewSection("Interfaces", atom.KindInterface)
	for _, m := range root.Get("interfaces").Members() {
		if m.Key == "host" || m.Node.Str("name") == "host" {
			continue
		}
		port := m.Node.Str("name")
		if port == "" {
			port = m.Suffix
		}
		if port == "" {
			port = "unknown"
		}
		state := m.Node.Get("state")
		status := state.Str("oper-status")
		if m.Node.Str("admin-status") == "down" {
			status = "user-disabled"
		}
		_ = s.Append(atom.Interface{
			Port:   port,
			Status: status,
			Duplex: atom.ParseDuplex(state.Str("actual-duplex-mode")),
			Speed:  state.Str("actual-port-speed"),
		})
	}
	return s
}

// inventory 只取顶层组件（无 parent）
func inventory(root *parser.Node) *atom.Section {
	s := atom.NewSection("Inventory", atom.KindInventory)
	for _, m := range root.Get("inventory").Members() {
		if !m.Node.Get("parent").IsNull() {
			continue
		}
		_ = s.Append(atom.Inventory{
			Serial:     m.Node.Str("serial-num"),
			Model:      m.Node.Str("model-name"),
			HwRevision: m.Node.Str("hardware-rev"),
			SwVersion:  collect.CanonicalVersion(m.Node.Str("software-rev"), false),
		})
	}
	return s
}

// ips 列出 IPv4 地址，默认网关挂在第一个包含它的子网上
func ips(root *parser.Node) *atom.Section {
	s := atom.NewSection("Ip", atom.KindIp)
	var (
		list    []atom.Ip
		gateway string
	)
	for _, m := range root.Path("ip", "ipv4").Members() {
		switch m.Word() {
		case "default-gateway":
			gateway = m.Node.Scalar()
		case "address":
			ip := atom.Ip{
				Address: m.Node.Str("ip"),
				Prefix:  number(m.Node.Get("prefix-length")),
			}
			if ip.Address == "" {
				ip.Address = m.Suffix
			}
			if vlan := m.Node.Str("c-vlan"); vlan != "" {
				ip.Vlan = "c" + vlan
			}
			list = append(list, ip)
		}
	}

	if gw, err := netip.ParseAddr(gateway); err == nil {
		for i, ip := range list {
			if !ip.Prefix.Valid {
				continue
			}
			addr, err := netip.ParseAddr(ip.Address)
			if err != nil {
				continue
			}
			prefix, err := addr.Prefix(int(ip.Prefix.Value))
			if err == nil && prefix.Contains(gw) {
				list[i].Gateway = gateway
				break
			}
		}
	}
	for _, ip := range list {
		_ = s.Append(ip)
	}
	return s
}

func nodeAtom(root *parser.Node) atom.Node {
	common := root.Path("radio-common", "node-config")
	dn := root.Path("radio-dn", "node-config")
	profile := dn.Get("default-radio-profile")
	return atom.Node{
		PopDN:     dn.Str("is-pop-dn"),
		Sync:      dn.Str("sync-mode"),
		Mode:      common.Str("operation-mode"),
		Distance:  number(common.Get("link-distance")),
		TxControl: common.Str("tx-power-control"),
		Frequency: unspec(profile.Str("frequency")),
		Polarity:  unspec(profile.Str("polarity")),
		Golay:     unspec(profile.Str("tx-golay-index")) + "|" + unspec(profile.Str("rx-golay-index")),
	}
}

// sectors 合并 radio-common 的运行状态与 radio-dn 的配置，按 index 对齐
func sectors(root *parser.Node, node atom.Node) *atom.Section {
	var (
		order  []string
		merged = make(map[string]*atom.Sector)
	)
	get := func(idx string) *atom.Sector {
		if sec, ok := merged[idx]; ok {
			return sec
		}
		sec := &atom.Sector{Index: idx}
		merged[idx] = sec
		order = append(order, idx)
		return sec
	}

	for _, m := range root.Path("radio-common", "sectors-config").Each("sector") {
		sec := get(sectorIndex(m))
		sec.Admin = m.Node.Str("admin-status")
		if sec.Admin == "down" {
			continue
		}
		state := m.Node.Get("state")
		temps := state.Get("temperatures")
		sec.FreqActual = state.Str("frequency")
		sec.Antenna = state.Str("antenna-mode")
		sec.Sync = state.Str("sync-mode")
		sec.TempModem = number(temps.Get("modem-temperature"))
		sec.TempRF = number(temps.Path("rf", "rf-temperature"))
	}

	for _, m := range root.Path("radio-dn", "sectors-config").Each("sector") {
		sec := get(sectorIndex(m))
		profile := m.Node.Get("radio-profile")
		sec.FreqConfig = profile.Str("frequency")
		if strings.EqualFold(sec.FreqConfig, unspecified) {
			sec.FreqConfig = node.Frequency
		}
		sec.Polarity = profile.Str("polarity")
		if strings.EqualFold(sec.Polarity, unspecified) {
			sec.Polarity = node.Polarity
		}
		tx, rx := profile.Str("tx-golay-index"), profile.Str("rx-golay-index")
		if strings.EqualFold(tx, unspecified) && strings.EqualFold(rx, unspecified) {
			sec.Golay = node.Golay
		} else {
			sec.Golay = unspec(tx) + "|" + unspec(rx)
		}
	}

	s := atom.NewSection("Sectors", atom.KindSector)
	for _, idx := range order {
		sec := merged[idx]
		if sec.FreqActual != "" && sec.FreqConfig != "" {
			if sec.FreqActual == sec.FreqConfig {
				sec.FreqActual += " (ok)"
			} else {
				sec.FreqActual += " (KO!)"
			}
		}
		_ = s.Append(*sec)
	}
	return s
}

func sectorIndex(m parser.Match) string {
	if idx := m.Node.Str("index"); idx != "" {
		return idx
	}
	return m.Suffix
}

// links 合并 radio-common 的活动链路与 radio-dn 的配置链路，按对端名称对齐。
// 仅出现在配置中的链路视为 disconnected。
func links(root *parser.Node) *atom.Section {
	var (
		order  []string
		merged = make(map[string]*atom.Link)
	)

	for _, m := range root.Path("radio-common", "links").Members() {
		status := atom.LinkStatus(m.Word())
		if status != atom.LinkActive && status != atom.LinkDisconnected {
			continue
		}
		remote := name(m, "remote-assigned-name")
		l := &atom.Link{Remote: remote, Status: status}
		if status == atom.LinkActive {
			activeFields(l, m.Node)
		}
		if _, dup := merged[remote]; !dup {
			order = append(order, remote)
		}
		merged[remote] = l
	}

	var extra []*atom.Link
	for _, m := range root.Path("radio-dn", "links").Each("configured") {
		remote := name(m, "remote-assigned-name")
		l, ok := merged[remote]
		if !ok {
			l = &atom.Link{Remote: remote, Status: atom.LinkDisconnected}
			extra = append(extra, l)
		}
		l.Admin = m.Node.Str("admin-status")
		switch m.Node.Str("responder-node-type") {
		case "cn":
			l.Type = "cn"
		case "dn":
			l.Type = "dn" + m.Node.Str("control-superframe")
		}
		l.CfgLocalSector = sectorList(m.Node, "local-sector")
		l.CfgRemoteSector = sectorList(m.Node, "remote-sector")
	}

	s := atom.NewSection("Links", atom.KindLink)
	for _, remote := range order {
		_ = s.Append(*merged[remote])
	}
	for _, l := range extra {
		_ = s.Append(*l)
	}
	return s
}

func activeFields(l *atom.Link, n *parser.Node) {
	up := n.Get("link-uptime")
	if sec, ok := up.Integer(); ok {
		l.Uptime = collect.UptimeClock(sec)
	} else {
		l.Uptime = up.Scalar()
	}
	l.Role = n.Str("local-role")
	if len(l.Role) > 4 {
		l.Role = l.Role[:4]
	}
	l.ActLocalSector = n.Str("actual-local-sector-index")
	l.ActRemoteSector = n.Str("actual-remote-sector-index")
	l.Rssi = number(n.Get("rssi"))
	l.Snr = number(n.Get("snr"))
	l.McsTx = number(n.Get("mcs-tx"))
	l.McsRx = number(n.Get("mcs-rx"))
	l.TilesTx = number(n.Get("active-tile-count-tx"))
	l.TilesRx = number(n.Get("active-tile-count-rx"))
	l.PerTx = n.Str("tx-per")
	l.PerRx = n.Str("rx-per")
	l.BeamTx = number(n.Get("beam-index-tx"))
	l.BeamRx = number(n.Get("beam-index-rx"))
}

// sectorList 拼接 local-sector/remote-sector 条目：index 字段、key 后缀或标量值
func sectorList(n *parser.Node, key string) string {
	var b strings.Builder
	for _, m := range n.Each(key) {
		idx := m.Node.Str("index")
		if idx == "" {
			idx = m.Suffix
		}
		if idx == "" {
			idx = m.Node.Scalar()
		}
		b.WriteString(idx)
	}
	return b.String()
}

func systemAtom(root *parser.Node) atom.System {
	sys := root.Get("system")
	state := sys.Get("state")
	gps := state.Get("gps")

	uptime := state.Str("uptime")
	if parts := strings.Split(uptime, ":"); len(parts) == 4 && len(parts[0]) == 4 {
		uptime = "0" + uptime
	}

	a := atom.System{
		Product:  state.Str("product"),
		Uptime:   uptime,
		DateTime: state.Str("date-and-time"),
		Location: strings.ReplaceAll(sys.Str("location"), ",", ";"),
		GpsMode:  gps.Str("fix-mode"),
		GpsSats:  number(gps.Get("fix-satellites-number")),
	}
	for _, b := range state.Get("banks-info").Each("bank") {
		version := collect.CanonicalVersion(b.Node.Str("software-version"), true)
		switch b.Node.Str("status") {
		case "active":
			a.SwActive = version
		case "passive":
			a.SwPassive = version
		}
	}
	return a
}

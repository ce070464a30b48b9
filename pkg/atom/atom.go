// Package atom 从控制台输出中提取的类型化记录
// 每种记录有固定的字段表，可展开为有序字段行，导出时无需区分类型
package atom

import (
	"strconv"
	"strings"
)

// Kind 记录类型名
type Kind string

const (
	KindSystem    Kind = "System"
	KindInterface Kind = "Interface"
	KindInventory Kind = "Inventory"
	KindIp        Kind = "Ip"
	KindNode      Kind = "Node"
	KindSector    Kind = "Sector"
	KindLink      Kind = "Link"

	KindStatus   Kind = "Status"
	KindSoftware Kind = "Software"
	KindEthernet Kind = "Ethernet"
	KindRadio    Kind = "Radio"
	KindNeighbor Kind = "Neighbor"
	KindBaseUnit Kind = "BaseUnit"
	KindTerminal Kind = "Terminal"
	KindEvent    Kind = "Event"
)

var schemas = map[Kind][]string{
	KindSystem:    {"product", "uptime", "datetime", "location", "sw_active", "sw_passive", "gps_mode", "gps_sats"},
	KindInterface: {"port", "status", "dup", "speed"},
	KindInventory: {"sn", "model", "hw_rev", "sw_ver"},
	KindIp:        {"address", "pref", "vlan", "gateway"},
	KindNode:      {"popdn", "sync", "mode", "sched", "ptx", "freq", "pol", "gol"},
	KindSector:    {"sec", "admin", "cfg_f", "pol", "gol", "act_f", "ant", "sync", "Tmdm", "Trf"},
	KindLink: {"remote", "admin", "role", "status", "uptime", "type", "cfg_lsec", "cfg_rsec", "act_lsec", "act_rsec",
		"rssi", "snr", "mcs_tx", "mcs_rx", "tiles_tx", "tiles_rx", "per_tx", "per_rx", "beam_index_tx", "beam_index_rx"},

	KindStatus:   {"description", "name", "location", "date", "time", "up_days"},
	KindSoftware: {"sw_active", "sw_offline"},
	KindEthernet: {"port", "oper", "speed"},
	KindRadio:    {"oper", "cinr", "rssi", "freq", "mode", "ptx", "distance"},
	KindNeighbor: {"port", "index", "chassis_id", "sys_name"},
	KindBaseUnit: {"mac", "freq", "guest"},
	KindTerminal: {"index", "mac", "status", "assoc", "bu_mac", "tx_mcs", "rssi", "sig_quality", "connect_days"},
	KindEvent:    {"log"},
}

// Schema 返回 k 的有序字段名，未知类型返回 nil
func Schema(k Kind) []string {
	s, ok := schemas[k]
	if !ok {
		return nil
	}
	return append([]string(nil), s...)
}

// Kinds 全部已声明的类型
func Kinds() []Kind {
	return []Kind{
		KindSystem, KindInterface, KindInventory, KindIp, KindNode, KindSector, KindLink,
		KindStatus, KindSoftware, KindEthernet, KindRadio, KindNeighbor, KindBaseUnit, KindTerminal, KindEvent,
	}
}

// Field 展开后的字段名/值
type Field struct {
	Name  string
	Value string
}

// Atom 封闭的记录类型集合，未导出的标记方法限制实现只在本包内
type Atom interface {
	Kind() Kind
	Fields() []Field
	atom()
}

// Map 按字段名展开为 map
func Map(a Atom) map[string]string {
	out := make(map[string]string)
	for _, f := range a.Fields() {
		out[f.Name] = f.Value
	}
	return out
}

func row(k Kind, values ...string) []Field {
	names := schemas[k]
	out := make([]Field, len(names))
	for i, n := range names {
		out[i].Name = n
		if i < len(values) {
			out[i].Value = values[i]
		}
	}
	return out
}

// Number 可缺省的整数，缺省时展开为空串
type Number struct {
	Value int64
	Valid bool
}

func Int(v int64) Number { return Number{Value: v, Valid: true} }

func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatInt(n.Value, 10)
}

// LinkStatus 无线链路状态
type LinkStatus string

const (
	LinkActive       LinkStatus = "active"
	LinkDisconnected LinkStatus = "disconnected"
)

// Duplex 端口协商的双工模式
type Duplex string

const (
	DuplexFull Duplex = "FD"
	DuplexHalf Duplex = "HD"
)

// ParseDuplex full/half 转为 FD/HD，其余原样保留
func ParseDuplex(s string) Duplex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return DuplexFull
	case "half":
		return DuplexHalf
	}
	return Duplex(s)
}

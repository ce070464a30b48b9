package atom

// System TG 节点的 system 块
type System struct {
	Product   string
	Uptime    string
	DateTime  string
	Location  string
	SwActive  string
	SwPassive string
	GpsMode   string
	GpsSats   Number
}

func (System) Kind() Kind { return KindSystem }
func (System) atom()      {}
func (a System) Fields() []Field {
	return row(KindSystem, a.Product, a.Uptime, a.DateTime, a.Location, a.SwActive, a.SwPassive, a.GpsMode, a.GpsSats.String())
}

// Interface TG 节点的以太网或射频端口
type Interface struct {
	Port   string
	Status string
	Duplex Duplex
	Speed  string
}

func (Interface) Kind() Kind { return KindInterface }
func (Interface) atom()      {}
func (a Interface) Fields() []Field {
	return row(KindInterface, a.Port, a.Status, string(a.Duplex), a.Speed)
}

type Inventory struct {
	Serial     string
	Model      string
	HwRevision string
	SwVersion  string
}

func (Inventory) Kind() Kind { return KindInventory }
func (Inventory) atom()      {}
func (a Inventory) Fields() []Field {
	return row(KindInventory, a.Serial, a.Model, a.HwRevision, a.SwVersion)
}

// Ip 一个 IPv4 地址，每个节点至多一个地址带网关
type Ip struct {
	Address string
	Prefix  Number
	Vlan    string
	Gateway string
}

func (Ip) Kind() Kind { return KindIp }
func (Ip) atom()      {}
func (a Ip) Fields() []Field {
	return row(KindIp, a.Address, a.Prefix.String(), a.Vlan, a.Gateway)
}

// Node 节点级无线配置
type Node struct {
	PopDN     string
	Sync      string
	Mode      string
	Distance  Number
	TxControl string
	Frequency string
	Polarity  string
	Golay     string
}

func (Node) Kind() Kind { return KindNode }
func (Node) atom()      {}
func (a Node) Fields() []Field {
	return row(KindNode, a.PopDN, a.Sync, a.Mode, a.Distance.String(), a.TxControl, a.Frequency, a.Polarity, a.Golay)
}

// Sector 合并一个扇区的配置与运行状态
type Sector struct {
	Index      string
	Admin      string
	FreqConfig string
	Polarity   string
	Golay      string
	FreqActual string
	Antenna    string
	Sync       string
	TempModem  Number
	TempRF     Number
}

func (Sector) Kind() Kind { return KindSector }
func (Sector) atom()      {}
func (a Sector) Fields() []Field {
	return row(KindSector, a.Index, a.Admin, a.FreqConfig, a.Polarity, a.Golay, a.FreqActual, a.Antenna, a.Sync,
		a.TempModem.String(), a.TempRF.String())
}

// Link 合并一条无线链路的运行状态与配置
type Link struct {
	Remote          string
	Admin           string
	Role            string
	Status          LinkStatus
	Uptime          string
	Type            string
	CfgLocalSector  string
	CfgRemoteSector string
	ActLocalSector  string
	ActRemoteSector string
	Rssi            Number
	Snr             Number
	McsTx           Number
	McsRx           Number
	TilesTx         Number
	TilesRx         Number
	PerTx           string
	PerRx           string
	BeamTx          Number
	BeamRx          Number
}

func (Link) Kind() Kind { return KindLink }
func (Link) atom()      {}
func (a Link) Fields() []Field {
	return row(KindLink, a.Remote, a.Admin, a.Role, string(a.Status), a.Uptime, a.Type,
		a.CfgLocalSector, a.CfgRemoteSector, a.ActLocalSector, a.ActRemoteSector,
		a.Rssi.String(), a.Snr.String(), a.McsTx.String(), a.McsRx.String(),
		a.TilesTx.String(), a.TilesRx.String(), a.PerTx, a.PerRx, a.BeamTx.String(), a.BeamRx.String())
}

// Status 平铺方言设备族的系统信息
type Status struct {
	Description string
	Name        string
	Location    string
	Date        string
	Time        string
	UpDays      string
}

func (Status) Kind() Kind { return KindStatus }
func (Status) atom()      {}
func (a Status) Fields() []Field {
	return row(KindStatus, a.Description, a.Name, a.Location, a.Date, a.Time, a.UpDays)
}

type Software struct {
	Active  string
	Offline string
}

func (Software) Kind() Kind { return KindSoftware }
func (Software) atom()      {}
func (a Software) Fields() []Field {
	return row(KindSoftware, a.Active, a.Offline)
}

type Ethernet struct {
	Port  string
	Oper  string
	Speed string
}

func (Ethernet) Kind() Kind { return KindEthernet }
func (Ethernet) atom()      {}
func (a Ethernet) Fields() []Field {
	return row(KindEthernet, a.Port, a.Oper, a.Speed)
}

type Radio struct {
	Oper      string
	Cinr      Number
	Rssi      Number
	Frequency Number
	Mode      string
	TxPower   Number
	Distance  Number
}

func (Radio) Kind() Kind { return KindRadio }
func (Radio) atom()      {}
func (a Radio) Fields() []Field {
	return row(KindRadio, a.Oper, a.Cinr.String(), a.Rssi.String(), a.Frequency.String(), a.Mode,
		a.TxPower.String(), a.Distance.String())
}

// Neighbor 一个 LLDP 邻居
type Neighbor struct {
	Port      string
	Index     string
	ChassisID string
	SysName   string
}

func (Neighbor) Kind() Kind { return KindNeighbor }
func (Neighbor) atom()      {}
func (a Neighbor) Fields() []Field {
	return row(KindNeighbor, a.Port, a.Index, a.ChassisID, a.SysName)
}

type BaseUnit struct {
	Mac       string
	Frequency Number
	Guest     string
}

func (BaseUnit) Kind() Kind { return KindBaseUnit }
func (BaseUnit) atom()      {}
func (a BaseUnit) Fields() []Field {
	return row(KindBaseUnit, a.Mac, a.Frequency.String(), a.Guest)
}

// Terminal 终端单元：从基站侧看到的（Index 有值）或终端自身上报的（BaseMac 有值）
type Terminal struct {
	Index       string
	Mac         string
	Status      string
	Association string
	BaseMac     string
	TxMcs       Number
	Rssi        Number
	SigQuality  Number
	ConnectDays string
}

func (Terminal) Kind() Kind { return KindTerminal }
func (Terminal) atom()      {}
func (a Terminal) Fields() []Field {
	return row(KindTerminal, a.Index, a.Mac, a.Status, a.Association, a.BaseMac,
		a.TxMcs.String(), a.Rssi.String(), a.SigQuality.String(), a.ConnectDays)
}

// Event 设备日志的末尾几行
type Event struct {
	Log string
}

func (Event) Kind() Kind { return KindEvent }
func (Event) atom()      {}
func (a Event) Fields() []Field {
	return row(KindEvent, a.Log)
}

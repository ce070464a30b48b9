package session

import (
	"regexp"
	"strings"
)

// Family 设备族，决定命令集、提示符形式和输出方言
type Family string

const (
	FamilyEH      Family = "EH"
	FamilyBU      Family = "BU"
	FamilyTU      Family = "TU"
	FamilyTG      Family = "TG"
	FamilyUnknown Family = "Unknown"
)

// Families 全部已知设备族，顺序固定
var Families = []Family{FamilyEH, FamilyBU, FamilyTU, FamilyTG}

// ParseFamily 不区分大小写，无法识别时返回 FamilyUnknown
func ParseFamily(s string) Family {
	for _, f := range Families {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f
		}
	}
	return FamilyUnknown
}

// Identity 无需下发命令即可得到的设备身份，无法推导的字段留空
type Identity struct {
	Model           string `json:"model"`
	Name            string `json:"name"`
	SerialNumber    string `json:"serial_number"`
	SoftwareVersion string `json:"software_version"`
	Family          Family `json:"family"`
}

// Known 是否推导出任何身份信息
func (id Identity) Known() bool {
	return id.Model != "" || id.Name != "" || id.SerialNumber != ""
}

var (
	bannerRe    = regexp.MustCompile(`(?m)^\s*([^,\r\n]+),\s*S/N:`)
	serialRe    = regexp.MustCompile(`S/N:\s*([^,\r\n]*)`)
	versionRe   = regexp.MustCompile(`Ver:\s*([^\r\n]+)`)
	tgPromptRe  = regexp.MustCompile(`^(MH-\S+)@(\S+)>\s*$`)
	anyPromptRe = regexp.MustCompile(`^(.+)>\s*$`)

	inventoryDescRe   = regexp.MustCompile(`inventory 1 desc\s*:\s*([^\r\n]*)`)
	inventorySerialRe = regexp.MustCompile(`inventory 1 serial\s*:\s*(\S*)`)
	inventorySwRe     = regexp.MustCompile(`inventory 1 sw-rev\s*:\s*(\S*)`)
)

// DeriveIdentity 由横幅与提示符推导身份。纯函数，相同输入结果相同
// TG 提示符（MH-xxx@name>）中的型号优先于横幅
func DeriveIdentity(banner, prompt string) Identity {
	id := parseBanner(banner)

	prompt = strings.TrimSpace(prompt)
	if m := tgPromptRe.FindStringSubmatch(prompt); m != nil {
		id.Model = m[1]
		id.Name = m[2]
	} else if m := anyPromptRe.FindStringSubmatch(prompt); m != nil {
		id.Name = m[1]
	}

	id.Family = ClassifyFamily(id.Model, prompt)
	return id
}

func parseBanner(banner string) Identity {
	var id Identity
	banner = strings.TrimSpace(banner)
	if banner == "" {
		return id
	}
	// 只有 "<model>, S/N: ..." 形式的横幅才是设备横幅，其余视为登录提示文字
	m := bannerRe.FindStringSubmatch(banner)
	if m == nil {
		return id
	}
	id.Model = strings.TrimSpace(m[1])
	if m := serialRe.FindStringSubmatch(banner); m != nil {
		id.SerialNumber = strings.TrimSpace(m[1])
	}
	if m := versionRe.FindStringSubmatch(banner); m != nil {
		id.SoftwareVersion = strings.TrimSpace(m[1])
	}
	return id
}

// ClassifyFamily 按型号前缀分类，无型号时看提示符形状
func ClassifyFamily(model, prompt string) Family {
	switch {
	case strings.HasPrefix(model, "EH"):
		return FamilyEH
	case strings.HasPrefix(model, "MH-B100"):
		return FamilyBU
	case strings.HasPrefix(model, "MH-T200"), strings.HasPrefix(model, "MH-T201"):
		return FamilyTU
	case strings.HasPrefix(model, "MH-"):
		return FamilyTG
	}
	if tgPromptRe.MatchString(strings.TrimSpace(prompt)) {
		return FamilyTG
	}
	return FamilyUnknown
}

// IdentityFromInventory 用 show inventory 1 的回显补齐 id 中缺失的字段
func IdentityFromInventory(id Identity, response string) Identity {
	if m := inventoryDescRe.FindStringSubmatch(response); m != nil && id.Model == "" {
		id.Model = strings.TrimSpace(m[1])
	}
	if m := inventorySerialRe.FindStringSubmatch(response); m != nil && id.SerialNumber == "" {
		id.SerialNumber = m[1]
	}
	if m := inventorySwRe.FindStringSubmatch(response); m != nil && id.SoftwareVersion == "" {
		id.SoftwareVersion = m[1]
	}
	if id.Family == "" || id.Family == FamilyUnknown {
		id.Family = ClassifyFamily(id.Model, "")
	}
	return id
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIdentityFromBanner(t *testing.T) {
	id := DeriveIdentity("EH-710TX, S/N: F544140339, Ver: 7.7.12-13214-f614d18", "")
	assert.Equal(t, Identity{
		Model:           "EH-710TX",
		SerialNumber:    "F544140339",
		SoftwareVersion: "7.7.12-13214-f614d18",
		Family:          FamilyEH,
	}, id)
}

func TestDeriveIdentityIsIdempotent(t *testing.T) {
	banner := "MH-T265, S/N: F123456789, Ver: 2.1.1-30521-ab12cd3\r\nAuthorized access only\r\n"
	first := DeriveIdentity(banner, "MH-T265@pop-1> ")
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, DeriveIdentity(banner, "MH-T265@pop-1> "))
	}
	assert.Equal(t, "pop-1", first.Name)
	assert.Equal(t, "2.1.1-30521-ab12cd3", first.SoftwareVersion)
	assert.Equal(t, FamilyTG, first.Family)
}

func TestDeriveIdentityFromPrompt(t *testing.T) {
	tests := []struct {
		name   string
		banner string
		prompt string
		want   Identity
	}{
		{"tg prompt", "", "MH-T265@cn-1>", Identity{Model: "MH-T265", Name: "cn-1", Family: FamilyTG}},
		{"plain prompt", "", "eh-1>", Identity{Name: "eh-1", Family: FamilyUnknown}},
		{"free text banner", "Welcome to the network", "eh-1>", Identity{Name: "eh-1", Family: FamilyUnknown}},
		{"tg prompt model wins", "MH-T265-CCC, S/N: X1, Ver: 2.1.1", "MH-T265@pop-1>", Identity{Model: "MH-T265", Name: "pop-1", SerialNumber: "X1", SoftwareVersion: "2.1.1", Family: FamilyTG}},
		{"motd with comma", "Welcome, authorised users only", "EH-8010FX>", Identity{Name: "EH-8010FX", Family: FamilyUnknown}},
		{"motd with comma tg prompt", "Welcome, authorised users only", "MH-T265@pop-1>", Identity{Model: "MH-T265", Name: "pop-1", Family: FamilyTG}},
		{"motd before banner", "Authorized access only\r\nEH-710TX, S/N: F5, Ver: 7.7.12", "eh-1>", Identity{Model: "EH-710TX", Name: "eh-1", SerialNumber: "F5", SoftwareVersion: "7.7.12", Family: FamilyEH}},
		{"nothing", "", "", Identity{Family: FamilyUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveIdentity(tt.banner, tt.prompt))
		})
	}
}

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		model  string
		prompt string
		want   Family
	}{
		{"EH-710TX", "", FamilyEH},
		{"EH-8010FX", "", FamilyEH},
		{"MH-B100-CCS-PoE", "", FamilyBU},
		{"MH-T200-CCS", "", FamilyTU},
		{"MH-T201", "", FamilyTU},
		{"MH-T265-CCC-PoE-MWW", "", FamilyTG},
		{"MH-N366", "", FamilyTG},
		{"", "MH-T280@x>", FamilyTG},
		{"", "router>", FamilyUnknown},
		{"Cisco", "", FamilyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyFamily(tt.model, tt.prompt), "%s %s", tt.model, tt.prompt)
	}
}

func TestParseFamily(t *testing.T) {
	assert.Equal(t, FamilyTG, ParseFamily("tg"))
	assert.Equal(t, FamilyEH, ParseFamily(" EH "))
	assert.Equal(t, FamilyUnknown, ParseFamily("xx"))
}

func TestIdentityFromInventory(t *testing.T) {
	resp := "inventory 1 desc : MH-B100-CCS-PoE\ninventory 1 sw-rev : 2.4.5\ninventory 1 serial : FB1\n"
	id := IdentityFromInventory(Identity{Name: "bu-1", Family: FamilyUnknown}, resp)
	assert.Equal(t, Identity{Model: "MH-B100-CCS-PoE", Name: "bu-1", SerialNumber: "FB1", SoftwareVersion: "2.4.5", Family: FamilyBU}, id)

	kept := IdentityFromInventory(Identity{Model: "EH-600", Family: FamilyEH}, resp)
	assert.Equal(t, "EH-600", kept.Model)
	assert.Equal(t, FamilyEH, kept.Family)
	assert.True(t, kept.Known())
	assert.False(t, Identity{}.Known())
}

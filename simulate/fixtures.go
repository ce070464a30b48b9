package simulate

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed devices
var builtin embed.FS

// outputsFS is the directory holding one sub-directory of command outputs per
// device. An empty dir selects the built-in outputs.
func outputsFS(dir string) fs.FS {
	if dir == "" {
		sub, _ := fs.Sub(builtin, "devices")
		return sub
	}
	return os.DirFS(dir)
}

// Fixture returns a built-in device output, e.g. Fixture("pop-1", "show").
func Fixture(device, cmd string) string {
	sub, err := fs.Sub(outputsFS(""), device)
	if err != nil {
		return ""
	}
	out, _ := (&Device{Name: device}).WithOutputs(sub).Output(cmd)
	return out
}

// SampleNetwork returns the built-in devices keyed by name: a TG PoP with one
// reachable CN, an EtherHaul, and a MultiHaul base unit and terminal unit.
func SampleNetwork() map[string]*Device {
	devices, err := DefaultConfig().Resolve()
	if err != nil {
		panic(err)
	}
	return devices
}

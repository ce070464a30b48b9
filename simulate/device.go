package simulate

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
)

// Device is one simulated radio. Responses take precedence over files in the
// device's output directory, which are named after the command with spaces
// replaced by underscores ("show eth eth1" → show_eth_eth1.txt).
type Device struct {
	Name      string            `mapstructure:"name"`
	Model     string            `mapstructure:"model"`
	Serial    string            `mapstructure:"serial"`
	Version   string            `mapstructure:"version"`
	Banner    string            `mapstructure:"banner"`
	Responses map[string]string `mapstructure:"responses"`
	Children  []string          `mapstructure:"children"`
	Stall     []string          `mapstructure:"stall"`

	outputs fs.FS
	links   map[string]*Device
}

// Prompt follows the radio conventions: "<model>@<name>>" on MultiHaul TG
// units, "<name>>" elsewhere.
func (d *Device) Prompt() string {
	if strings.HasPrefix(d.Model, "MH-") && !strings.HasPrefix(d.Model, "MH-B") && !strings.HasPrefix(d.Model, "MH-T20") {
		return fmt.Sprintf("%s@%s>", d.Model, d.Name)
	}
	return d.Name + ">"
}

// BannerText is sent during authentication. An explicit Banner wins; otherwise
// one is composed when a serial is known.
func (d *Device) BannerText() string {
	if d.Banner != "" {
		return d.Banner
	}
	if d.Serial == "" {
		return ""
	}
	return fmt.Sprintf("%s, S/N: %s, Ver: %s\n", d.Model, d.Serial, d.Version)
}

// Link makes children reachable with "connect <name>".
func (d *Device) Link(children ...*Device) *Device {
	for _, c := range children {
		d.LinkAs(c.Name, c)
	}
	return d
}

// LinkAs makes child reachable under a name that need not be its own, as on
// a mis-provisioned link table.
func (d *Device) LinkAs(name string, child *Device) *Device {
	if d.links == nil {
		d.links = make(map[string]*Device)
	}
	d.links[name] = child
	if !contains(d.Children, name) {
		d.Children = append(d.Children, name)
	}
	return d
}

// WithOutputs sets the directory command outputs are read from.
func (d *Device) WithOutputs(fsys fs.FS) *Device {
	d.outputs = fsys
	return d
}

// Output returns the canned response to cmd. "show <section>" falls back to
// the matching top-level block of the full "show" dump.
func (d *Device) Output(cmd string) (string, bool) {
	if out, ok := d.Responses[cmd]; ok {
		return out, true
	}
	if out, ok := d.file(cmd); ok {
		return out, true
	}
	if name, ok := strings.CutPrefix(cmd, "show "); ok && !strings.Contains(name, " ") {
		full, ok := d.Responses["show"]
		if !ok {
			full, ok = d.file("show")
		}
		if ok {
			if block := section(full, name); block != "" {
				return block, true
			}
		}
	}
	return "", false
}

func (d *Device) file(cmd string) (string, bool) {
	if d.outputs == nil {
		return "", false
	}
	for _, name := range []string{cmd + ".txt", strings.ReplaceAll(cmd, " ", "_") + ".txt"} {
		if bs, err := fs.ReadFile(d.outputs, name); err == nil {
			return string(bs), true
		}
	}
	return "", false
}

func (d *Device) stalls(cmd string) bool { return contains(d.Stall, cmd) }

// section cuts the top-level block "name { ... }" out of a brace dump.
func section(dump, name string) string {
	var out []string
	depth := -1
	for _, line := range strings.Split(strings.ReplaceAll(dump, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if depth < 0 {
			if trimmed == name+" {" && !strings.HasPrefix(line, " ") {
				depth = 1
				out = append(out, line)
			}
			continue
		}
		out = append(out, line)
		if strings.HasSuffix(trimmed, "{") {
			depth++
		} else if strings.HasPrefix(trimmed, "}") {
			depth--
		}
		if depth == 0 {
			break
		}
	}
	return strings.Join(out, "\n")
}

// Terminal is the command interpreter of one shell. Hops are kept on a stack;
// the top device answers commands.
type Terminal struct {
	stack []*Device
}

func NewTerminal(root *Device) *Terminal {
	return &Terminal{stack: []*Device{root}}
}

func (t *Terminal) Current() *Device { return t.stack[len(t.stack)-1] }

func (t *Terminal) Depth() int { return len(t.stack) - 1 }

// Execute runs one command line. stall reports that no prompt follows; exit
// that the shell ends.
func (t *Terminal) Execute(line string) (out string, stall, exit bool) {
	dev := t.Current()
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0:
		return "", false, false
	case dev.stalls(line):
		return "", true, false
	case fields[0] == "connect" && len(fields) == 2:
		child, ok := dev.links[fields[1]]
		if !ok {
			return fmt.Sprintf("Error: failed to connect to %s: no route to remote", fields[1]), false, false
		}
		t.stack = append(t.stack, child)
		return "", false, false
	case line == "quit" || line == "exit":
		if len(t.stack) > 1 {
			t.stack = t.stack[:len(t.stack)-1]
			return "Connection closed", false, false
		}
		return "", false, true
	}
	if out, ok := dev.Output(line); ok {
		return out, false, false
	}
	if fields[0] == "set" {
		return "", false, false
	}
	return fmt.Sprintf("%% Invalid input detected: '%s'", line), false, false
}

// Serve runs the shell over rw: every line is echoed, answered and followed by
// the current prompt, which carries no trailing newline.
func (t *Terminal) Serve(rw io.ReadWriter) error {
	w := func(s string) error {
		_, err := io.WriteString(rw, s)
		return err
	}
	if err := w(t.Current().Prompt() + " "); err != nil {
		return err
	}

	reader := bufio.NewReader(rw)
	var line []byte
	prevCR := false
	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b != '\r' && b != '\n' {
			prevCR = false
			line = append(line, b)
			continue
		}
		if b == '\n' && prevCR {
			prevCR = false
			continue
		}
		prevCR = b == '\r'

		cmd := strings.TrimSpace(string(line))
		line = line[:0]
		if err := w(cmd + "\r\n"); err != nil {
			return err
		}
		out, stall, exit := t.Execute(cmd)
		if exit {
			return nil
		}
		if stall {
			continue
		}
		if out != "" {
			if err := w(ensureCRLF(out)); err != nil {
				return err
			}
		}
		if err := w(t.Current().Prompt() + " "); err != nil {
			return err
		}
	}
}

// Pipe serves root over an in-memory connection and returns the client end.
func Pipe(root *Device) net.Conn {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		_ = NewTerminal(root).Serve(server)
	}()
	return client
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

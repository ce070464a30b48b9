package service

import (
	"bufio"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// 未指定凭据时的默认登录信息
const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"
)

// maxExpand 单行地址展开上限，防止误写 /8 之类的大网段
const maxExpand = 1 << 16

var (
	usernameRe = regexp.MustCompile(`^[Uu]sername\s*=\s*(\S+)`)
	passwordRe = regexp.MustCompile(`^[Pp]assword\s*=\s*(\S+)`)
	hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)
)

// Target 待扫描的设备地址与登录凭据
type Target struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"-"`
}

func (t Target) String() string { return t.Address }

// SkippedLine 无法识别的目标行
type SkippedLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// ParseTargets 解析目标清单文本。每行可以是：
//
//	username=<name> / password=<secret>   更新后续行使用的凭据
//	192.168.3.0/24                         网段内的全部主机地址
//	192.168.3.10-192.168.3.14              闭区间地址段
//	192.168.3.10-14                        末段地址区间
//	192.168.3.5 | 192.168.3.5:2222 | host  单个地址
//
// 空行与 # 开头的行被忽略；重复地址只保留第一次出现。
func ParseTargets(text string) ([]Target, []SkippedLine) {
	username, password := DefaultUsername, DefaultPassword
	var (
		targets []Target
		skipped []SkippedLine
		seen    = make(map[string]struct{})
	)
	add := func(addr string) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		targets = append(targets, Target{Address: addr, Username: username, Password: password})
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	row := 0
	for sc.Scan() {
		row++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case usernameRe.MatchString(line):
			username = usernameRe.FindStringSubmatch(line)[1]
			continue
		case passwordRe.MatchString(line):
			password = passwordRe.FindStringSubmatch(line)[1]
			continue
		}
		addrs, err := ExpandAddress(line)
		if err != nil {
			skipped = append(skipped, SkippedLine{Line: row, Text: line, Reason: err.Error()})
			continue
		}
		for _, a := range addrs {
			add(a)
		}
	}
	return targets, skipped
}

// ExpandTargets 展开地址列表，全部使用同一组凭据
func ExpandTargets(entries []string, username, password string) ([]Target, error) {
	var b strings.Builder
	if username != "" {
		fmt.Fprintf(&b, "username=%s\n", username)
	}
	if password != "" {
		fmt.Fprintf(&b, "password=%s\n", password)
	}
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	targets, skipped := ParseTargets(b.String())
	if len(skipped) > 0 {
		s := skipped[0]
		return nil, fmt.Errorf("invalid target %q: %s", s.Text, s.Reason)
	}
	return targets, nil
}

// ExpandAddress 将一行地址描述展开为地址列表
func ExpandAddress(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.Contains(line, "/"):
		return expandPrefix(line)
	case strings.Contains(line, "-") && startsWithDigit(line):
		return expandRange(line)
	}
	if ap, err := netip.ParseAddrPort(line); err == nil && ap.Addr().Is4() {
		return []string{ap.String()}, nil
	}
	if a, err := netip.ParseAddr(line); err == nil {
		if !a.Is4() {
			return nil, fmt.Errorf("only IPv4 addresses are supported")
		}
		return []string{a.String()}, nil
	}
	host := line
	if h, p, err := net.SplitHostPort(line); err == nil {
		if _, perr := strconv.ParseUint(p, 10, 16); perr != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		host = h
	}
	if hostnameRe.MatchString(host) && !allDigitsAndDots(host) {
		return []string{line}, nil
	}
	return nil, fmt.Errorf("invalid address")
}

func expandPrefix(line string) ([]string, error) {
	p, err := netip.ParsePrefix(line)
	if err != nil {
		return nil, fmt.Errorf("invalid network: %w", err)
	}
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("only IPv4 networks are supported")
	}
	if p.Masked() != p {
		return nil, fmt.Errorf("host bits set")
	}
	bits := p.Bits()
	if 32-bits > 16 {
		return nil, fmt.Errorf("network larger than %d addresses", maxExpand)
	}
	first := p.Addr()
	size := 1 << (32 - bits)
	var out []string
	for i, a := 0, first; i < size; i, a = i+1, a.Next() {
		// /31 和 /32 没有网络地址与广播地址
		if bits < 31 && (i == 0 || i == size-1) {
			continue
		}
		out = append(out, a.String())
	}
	return out, nil
}

func expandRange(line string) ([]string, error) {
	lo, hi, _ := strings.Cut(line, "-")
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	first, err := netip.ParseAddr(lo)
	if err != nil || !first.Is4() {
		return nil, fmt.Errorf("invalid range start %q", lo)
	}
	var last netip.Addr
	if n, err := strconv.Atoi(hi); err == nil {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("invalid range end %q", hi)
		}
		b := first.As4()
		b[3] = byte(n)
		last = netip.AddrFrom4(b)
	} else if last, err = netip.ParseAddr(hi); err != nil || !last.Is4() {
		return nil, fmt.Errorf("invalid range end %q", hi)
	}
	if last.Less(first) {
		return nil, fmt.Errorf("range end %s before start %s", last, first)
	}
	var out []string
	for a := first; ; a = a.Next() {
		out = append(out, a.String())
		if len(out) > maxExpand {
			return nil, fmt.Errorf("range larger than %d addresses", maxExpand)
		}
		if a == last {
			break
		}
	}
	return out, nil
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func allDigitsAndDots(s string) bool {
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Batches 将目标按 size 切分
func Batches(targets []Target, size int) [][]Target {
	if size <= 0 {
		size = len(targets)
	}
	var out [][]Target
	for start := 0; start < len(targets); start += size {
		end := start + size
		if end > len(targets) {
			end = len(targets)
		}
		out = append(out, targets[start:end])
	}
	return out
}

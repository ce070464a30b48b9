// Package parser 将无线设备的控制台输出转换为通用文档树
//
// 支持两种固件方言。花括号方言按块嵌套：
//
//	ip {
//	    ipv4 {
//	        address 172.19.40.10 {
//	            prefix-length 24;
//	        }
//	        default-gateway 172.19.40.1;
//	    }
//	}
//
// 平铺方言每行一个 "<路径词> : <值>"：
//
//	eth eth1 operational : up
//
// 两者都先规范化为 YAML，再解析成 Node 树。
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// Dialect 控制台输出的语法
type Dialect int

const (
	Brace Dialect = iota
	Flat
)

func (d Dialect) String() string {
	if d == Flat {
		return "flat"
	}
	return "brace"
}

// entry 块中的一个键；块有子项，标量有值
type entry struct {
	key      string
	value    string
	quoted   bool
	null     bool
	block    bool
	broken   bool
	line     int
	children []*entry
}

func (e *entry) add(child *entry) { e.children = append(e.children, child) }

// find 返回最后一个同名子项，重复的平铺路径延续最近的块
func (e *entry) find(key string) *entry {
	for i := len(e.children) - 1; i >= 0; i-- {
		if e.children[i].key == key {
			return e.children[i]
		}
	}
	return nil
}

var (
	closeRe = regexp.MustCompile(`^\}\s*;?$`)
	emptyRe = regexp.MustCompile(`^(.+?)\s*\{\s*\}\s*;?$`)
	openRe  = regexp.MustCompile(`^(.+?)\s*\{$`)
	leafRe  = regexp.MustCompile(`^(\S+?)(?:\s+(.+?))?\s*;$`)
	flatRe  = regexp.MustCompile(`^(.*?\S)\s+:(?:\s+(.*))?$`)
	intRe   = regexp.MustCompile(`^-?(?:0|[1-9][0-9]{0,17})$`)
)

// Normalize 将花括号方言的输出转换为 YAML 文档
// 无法识别的行会丢弃最内层未闭合的块并记一条解析错误，同级的块保留
func Normalize(text string) (string, []error) {
	root, errs := parseBrace(text)
	out, err := emit(root)
	if err != nil {
		errs = append(errs, session.ParseError("normalize", "", err))
	}
	return out, errs
}

// NormalizeFlat 将平铺方言的输出转换为 YAML 文档
func NormalizeFlat(text string) (string, []error) {
	root, errs := parseFlat(text)
	out, err := emit(root)
	if err != nil {
		errs = append(errs, session.ParseError("normalize", "", err))
	}
	return out, errs
}

func lineError(n int, format string, args ...interface{}) error {
	return session.ParseError("normalize", "", fmt.Errorf("line %d: %s", n, fmt.Sprintf(format, args...)))
}

func parseBrace(text string) (*entry, []error) {
	root := &entry{block: true}
	stack := []*entry{root}
	var errs []error

	top := func() *entry { return stack[len(stack)-1] }
	breakTop := func(n int, reason string, args ...interface{}) {
		b := top()
		if b == root {
			errs = append(errs, lineError(n, reason, args...))
			return
		}
		if !b.broken {
			b.broken = true
			errs = append(errs, lineError(n, reason+" in block '%s'; block dropped", append(args, b.key)...))
		}
	}

	for i, raw := range strings.Split(text, "\n") {
		n := i + 1
		line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
		if line == "" {
			continue
		}
		switch {
		case closeRe.MatchString(line):
			if len(stack) == 1 {
				errs = append(errs, lineError(n, "unbalanced '}'"))
				continue
			}
			b := top()
			stack = stack[:len(stack)-1]
			if !b.broken {
				top().add(b)
			}
		case emptyRe.MatchString(line):
			m := emptyRe.FindStringSubmatch(line)
			top().add(&entry{key: unquoteKey(m[1]), block: true, line: n})
		case openRe.MatchString(line):
			m := openRe.FindStringSubmatch(line)
			stack = append(stack, &entry{key: unquoteKey(m[1]), block: true, line: n})
		case leafRe.MatchString(line):
			m := leafRe.FindStringSubmatch(line)
			e := &entry{key: m[1], line: n}
			switch v := m[2]; {
			case v == "":
				e.null = true
			case len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"':
				e.value, e.quoted = unescape(v[1:len(v)-1]), true
			case strings.HasPrefix(v, `"`):
				breakTop(n, "unterminated string")
				continue
			default:
				e.value = v
			}
			top().add(e)
		default:
			breakTop(n, "unrecognised line %q", line)
		}
	}
	for len(stack) > 1 {
		b := top()
		stack = stack[:len(stack)-1]
		errs = append(errs, session.ParseError("normalize", "",
			fmt.Errorf("line %d: block '%s' not closed; block dropped", b.line, b.key)))
	}
	return root, errs
}

func parseFlat(text string) (*entry, []error) {
	root := &entry{block: true}
	var errs []error
	for i, raw := range strings.Split(text, "\n") {
		n := i + 1
		line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
		m := flatRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := strings.Fields(m[1])
		value := strings.TrimSpace(m[2])

		parent := root
		ok := true
		for _, word := range path[:len(path)-1] {
			next := parent.find(word)
			if next == nil {
				next = &entry{key: word, block: true, line: n}
				parent.add(next)
			} else if !next.block {
				errs = append(errs, lineError(n, "'%s' is both a value and a path", word))
				ok = false
				break
			}
			parent = next
		}
		if !ok {
			continue
		}
		leaf := path[len(path)-1]
		if prev := parent.find(leaf); prev != nil && prev.block {
			errs = append(errs, lineError(n, "'%s' is both a path and a value", leaf))
			continue
		}
		parent.add(&entry{key: leaf, value: value, null: value == "", line: n})
	}
	return root, errs
}

func unquoteKey(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, `"`) {
		return s
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(s, `"`, " ")), " ")
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func emit(root *entry) (string, error) {
	if len(root.children) == 0 {
		return "{}\n", nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping(root.children)); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// mapping 构造 YAML 映射，同一块内重复的键在首次出现的位置合并为序列
func mapping(children []*entry) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var order []string
	groups := make(map[string][]*entry)
	for _, c := range children {
		if _, seen := groups[c.key]; !seen {
			order = append(order, c.key)
		}
		groups[c.key] = append(groups[c.key], c)
	}
	for _, key := range order {
		k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		group := groups[key]
		if len(group) == 1 {
			m.Content = append(m.Content, k, value(group[0]))
			continue
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range group {
			seq.Content = append(seq.Content, value(e))
		}
		m.Content = append(m.Content, k, seq)
	}
	return m
}

func value(e *entry) *yaml.Node {
	switch {
	case e.block:
		return mapping(e.children)
	case e.null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case !e.quoted && intRe.MatchString(e.value):
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: e.value}
	case e.quoted:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.value, Style: yaml.DoubleQuotedStyle}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.value}
}

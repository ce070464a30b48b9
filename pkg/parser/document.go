package parser

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// NodeKind 文档节点的形态
type NodeKind int

const (
	NullNode NodeKind = iota
	ScalarNode
	MapNode
	SeqNode
)

// Entry 映射中的一个键，映射保持文档顺序
type Entry struct {
	Key   string
	Value *Node
}

// Node 有序映射、序列或标量
// 所有访问方法对 nil 安全，缺失的段落可以链式查找
type Node struct {
	Kind    NodeKind
	Entries []Entry
	Items   []*Node
	Text    string
	Number  int64
	IsInt   bool
}

// Match 按键前缀选出的映射项
// 例如前缀 "ports" 下的 "ports eth1"，Suffix 为 "eth1"
type Match struct {
	Key    string
	Suffix string
	Node   *Node
}

// Load 按方言规范化 text 并解析
func Load(text string, d Dialect) (*Node, []error) {
	var (
		doc  string
		errs []error
	)
	if d == Flat {
		doc, errs = NormalizeFlat(text)
	} else {
		doc, errs = Normalize(text)
	}
	root, err := Parse(doc)
	if err != nil {
		errs = append(errs, err)
		root = &Node{Kind: MapNode}
	}
	return root, errs
}

// Parse 将 YAML 文档读成 Node 树
func Parse(doc string) (*Node, error) {
	var yn yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &yn); err != nil {
		return nil, session.ParseError("parse", "", err)
	}
	if yn.Kind == 0 {
		return &Node{Kind: MapNode}, nil
	}
	if yn.Kind == yaml.DocumentNode {
		if len(yn.Content) == 0 {
			return &Node{Kind: MapNode}, nil
		}
		return convert(yn.Content[0])
	}
	return convert(&yn)
}

func convert(yn *yaml.Node) (*Node, error) {
	switch yn.Kind {
	case yaml.MappingNode:
		n := &Node{Kind: MapNode}
		for i := 0; i+1 < len(yn.Content); i += 2 {
			v, err := convert(yn.Content[i+1])
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, Entry{Key: yn.Content[i].Value, Value: v})
		}
		return n, nil
	case yaml.SequenceNode:
		n := &Node{Kind: SeqNode}
		for _, c := range yn.Content {
			v, err := convert(c)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, v)
		}
		return n, nil
	case yaml.AliasNode:
		return convert(yn.Alias)
	case yaml.ScalarNode:
		switch yn.ShortTag() {
		case "!!null":
			return &Node{Kind: NullNode}, nil
		case "!!int":
			v, err := strconv.ParseInt(yn.Value, 10, 64)
			if err != nil {
				return &Node{Kind: ScalarNode, Text: yn.Value}, nil
			}
			return &Node{Kind: ScalarNode, Text: yn.Value, Number: v, IsInt: true}, nil
		}
		return &Node{Kind: ScalarNode, Text: yn.Value}, nil
	}
	return nil, session.ParseError("parse", "", fmt.Errorf("line %d: unsupported node", yn.Line))
}

func (n *Node) IsNull() bool { return n == nil || n.Kind == NullNode }

// Len 映射的项数或序列的元素数
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	if n.Kind == SeqNode {
		return len(n.Items)
	}
	return len(n.Entries)
}

// Get 返回 key 下的第一个值
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != MapNode {
		return nil
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// Path 逐层查找嵌套映射
func (n *Node) Path(keys ...string) *Node {
	for _, k := range keys {
		n = n.Get(k)
	}
	return n
}

// List 序列返回其元素，否则返回节点本身
// 调用方无需区分键出现一次还是重复出现
func (n *Node) List() []*Node {
	switch {
	case n == nil:
		return nil
	case n.Kind == SeqNode:
		return n.Items
	}
	return []*Node{n}
}

// Each 选出键等于 prefix 或以 "prefix " 开头的项
// 重复键按顺序展开，每个元素一个 Match
func (n *Node) Each(prefix string) []Match {
	if n == nil || n.Kind != MapNode {
		return nil
	}
	var out []Match
	for _, e := range n.Entries {
		var suffix string
		switch {
		case e.Key == prefix:
		case strings.HasPrefix(e.Key, prefix+" "):
			suffix = strings.TrimSpace(e.Key[len(prefix)+1:])
		default:
			continue
		}
		for _, item := range e.Value.List() {
			out = append(out, Match{Key: e.Key, Suffix: suffix, Node: item})
		}
	}
	return out
}

// Members 展开映射的全部项，重复键每个元素一个 Match
// Suffix 为去掉第一个词后的键
func (n *Node) Members() []Match {
	if n == nil || n.Kind != MapNode {
		return nil
	}
	var out []Match
	for _, e := range n.Entries {
		_, suffix, _ := strings.Cut(e.Key, " ")
		for _, item := range e.Value.List() {
			out = append(out, Match{Key: e.Key, Suffix: strings.TrimSpace(suffix), Node: item})
		}
	}
	return out
}

// Word 键的第一个词
func (m Match) Word() string {
	w, _, _ := strings.Cut(m.Key, " ")
	return w
}

// Find 返回第一个键等于 prefix 或以 "prefix " 开头的项
func (n *Node) Find(prefix string) (Match, bool) {
	m := n.Each(prefix)
	if len(m) == 0 {
		return Match{}, false
	}
	return m[0], true
}

// Scalar 标量转文本，整数按十进制；容器与 null 返回空串
func (n *Node) Scalar() string {
	if n == nil || n.Kind != ScalarNode {
		return ""
	}
	if n.IsInt {
		return strconv.FormatInt(n.Number, 10)
	}
	return n.Text
}

// Integer 将标量转换为整数
func (n *Node) Integer() (int64, bool) {
	if n == nil || n.Kind != ScalarNode {
		return 0, false
	}
	if n.IsInt {
		return n.Number, true
	}
	v, err := strconv.ParseInt(strings.TrimSpace(n.Text), 10, 64)
	return v, err == nil
}

// Str key 下的标量文本
func (n *Node) Str(key string) string { return n.Get(key).Scalar() }

// Int key 下的整数
func (n *Node) Int(key string) (int64, bool) { return n.Get(key).Integer() }

// Keys 按顺序列出映射的键
func (n *Node) Keys() []string {
	if n == nil || n.Kind != MapNode {
		return nil
	}
	keys := make([]string, len(n.Entries))
	for i, e := range n.Entries {
		keys[i] = e.Key
	}
	return keys
}

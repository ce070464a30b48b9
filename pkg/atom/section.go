package atom

import (
	"fmt"

	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// Section 同一类型记录的有序命名分组
type Section struct {
	Name  string
	Kind  Kind
	Atoms []Atom
}

func NewSection(name string, k Kind) *Section {
	return &Section{Name: name, Kind: k}
}

// Append 追加记录，类型不符时报错
func (s *Section) Append(a Atom) error {
	if a == nil {
		return fmt.Errorf("section %s: nil atom", s.Name)
	}
	if a.Kind() != s.Kind {
		return fmt.Errorf("section %s holds %s atoms, got %s", s.Name, s.Kind, a.Kind())
	}
	s.Atoms = append(s.Atoms, a)
	return nil
}

func (s *Section) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Atoms)
}

// Header 分段的 CSV 表头
func (s *Section) Header() []string {
	return append([]string{"date", "route", "name"}, Schema(s.Kind)...)
}

// Rows 展开全部记录，行首为扫描日期、hop 路径和设备名
func (s *Section) Rows(date, route, name string) [][]string {
	rows := make([][]string, 0, len(s.Atoms))
	for _, a := range s.Atoms {
		r := []string{date, route, name}
		for _, f := range a.Fields() {
			r = append(r, f.Value)
		}
		rows = append(rows, r)
	}
	return rows
}

// Document 一个 hop 上一次 show 的解析结果
type Document struct {
	TargetID string
	Identity session.Identity
	Sections []*Section
	Errors   []error
}

func NewDocument(targetID string, id session.Identity) *Document {
	return &Document{TargetID: targetID, Identity: id}
}

// Name 设备名，未知时为 target
func (d *Document) Name() string {
	if d.Identity.Name != "" {
		return d.Identity.Name
	}
	return d.TargetID
}

// Add 追加分段，同名分段被替换
func (d *Document) Add(s *Section) {
	for i, cur := range d.Sections {
		if cur.Name == s.Name {
			d.Sections[i] = s
			return
		}
	}
	d.Sections = append(d.Sections, s)
}

// Section 按名称查找分段
func (d *Document) Section(name string) *Section {
	if d == nil {
		return nil
	}
	for _, s := range d.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Fail 记录文档的解析错误
func (d *Document) Fail(err error) {
	if err != nil {
		d.Errors = append(d.Errors, err)
	}
}

// AtomCount 全部分段的记录总数
func (d *Document) AtomCount() int {
	n := 0
	for _, s := range d.Sections {
		n += s.Len()
	}
	return n
}

package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// DeviceHeader devices.csv 表头，与 ReportRow 字段顺序一致
var DeviceHeader = []string{
	"date", "address", "route", "name", "model", "serial_number", "software_version", "family",
	"state", "connected", "depth", "commands", "failed", "atoms", "last_error",
}

// CommandHeader commands.csv 表头
var CommandHeader = []string{"date", "address", "route", "command", "success", "kind", "error", "duration_ms"}

// Record 一台设备的完整扫描结果
type Record struct {
	Address   string
	Rows      []ReportRow
	Documents []*atom.Document
	Commands  []session.Command
	// RawPaths 每个 hop 的原始输出对象（命令 -> URI）
	RawPaths map[string]collect.RawStorePaths
}

// CSVExporter 按分段追加写 <task>_<Section>.csv，每台设备/hop 一行写入 <task>_devices.csv，
// 每条命令一行写入 <task>_commands.csv。可被多个批次复用，表头只写一次。
type CSVExporter struct {
	dir    string
	taskID string
	date   string

	mu    sync.Mutex
	files map[string]string
}

// NewCSVExporter date 为写入每行的扫描日期
func NewCSVExporter(dir, taskID, date string) *CSVExporter {
	return &CSVExporter{dir: dir, taskID: taskID, date: date, files: make(map[string]string)}
}

// FileKey 分段的文件名后缀。分段名本身是另一种原子类型名时追加类型以区分表头。
func FileKey(s *atom.Section) string {
	if k := atom.Kind(s.Name); k != s.Kind && atom.Schema(k) != nil {
		return s.Name + "_" + string(s.Kind)
	}
	return s.Name
}

// Append 写入一个批次的结果
func (e *CSVExporter) Append(records []Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	sections := make(map[string][][]string)
	headers := make(map[string][]string)
	var order []string
	var devices, commands [][]string
	for _, r := range records {
		for _, row := range r.Rows {
			devices = append(devices, e.deviceRow(row))
		}
		for _, c := range r.Commands {
			commands = append(commands, []string{
				e.date, r.Address, c.TargetID, c.Text, strconv.FormatBool(c.Success), string(c.Kind), c.Error,
				strconv.FormatInt(c.Duration.Milliseconds(), 10),
			})
		}
		for _, d := range r.Documents {
			for _, s := range d.Sections {
				if s.Len() == 0 {
					continue
				}
				key := FileKey(s)
				if _, ok := headers[key]; !ok {
					headers[key] = s.Header()
					order = append(order, key)
				}
				sections[key] = append(sections[key], s.Rows(e.date, d.TargetID, d.Name())...)
			}
		}
	}

	if err := e.write("devices", DeviceHeader, devices); err != nil {
		return err
	}
	if err := e.write("commands", CommandHeader, commands); err != nil {
		return err
	}
	for _, key := range order {
		if err := e.write(key, headers[key], sections[key]); err != nil {
			return err
		}
	}
	return nil
}

func (e *CSVExporter) deviceRow(r ReportRow) []string {
	return []string{
		e.date, r.Address, r.TargetID, r.Name, r.Model, r.SerialNumber, r.SoftwareVersion, r.Family,
		string(r.State), strconv.FormatBool(r.Connected), strconv.Itoa(r.Depth),
		strconv.Itoa(r.Commands), strconv.Itoa(r.Failed), strconv.Itoa(r.Atoms), r.LastError,
	}
}

func (e *CSVExporter) write(key string, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.csv", e.taskID, key))
	_, existed := e.files[key]
	if !existed {
		if _, err := os.Stat(path); err == nil {
			existed = true
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !existed {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	e.files[key] = path
	return nil
}

// Files 已写入的文件路径，按名称排序
func (e *CSVExporter) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.files))
	for _, p := range e.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RenderDocument 以对齐表格输出文档的非空分段
func RenderDocument(w io.Writer, doc *atom.Document) error {
	if _, err := fmt.Fprintf(w, "# %s\n", doc.TargetID); err != nil {
		return err
	}
	for _, s := range doc.Sections {
		if s.Len() == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", s.Name)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(atom.Schema(s.Kind), "\t"))
		for _, a := range s.Atoms {
			vals := make([]string, 0, len(a.Fields()))
			for _, f := range a.Fields() {
				vals = append(vals, dash(f.Value))
			}
			fmt.Fprintln(tw, strings.Join(vals, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	for _, err := range doc.Errors {
		fmt.Fprintf(w, "! %v\n", err)
	}
	return nil
}

// RenderReport 以对齐表格输出设备汇总
func RenderReport(w io.Writer, rows []ReportRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tNAME\tMODEL\tFAMILY\tSTATE\tCMDS\tFAILED\tATOMS\tLAST ERROR")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.TargetID, dash(r.Name), dash(r.Model), dash(r.Family), r.State, r.Commands, r.Failed, r.Atoms, r.LastError)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/internal/database"
	"github.com/sshcollectorpro/batchscanner/internal/model"
	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/pkg/metrics"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// 扫描动作
const (
	ActionScan    = "scan"
	ActionShow    = "show"
	ActionSetTime = "set-time"
	ActionScript  = "script"
)

// ScanRequest 批量扫描请求
type ScanRequest struct {
	TaskID              string   `json:"task_id,omitempty"`
	Action              string   `json:"action"`
	Targets             []Target `json:"targets"`
	Families            []string `json:"families,omitempty"`
	IncludeSubordinates bool     `json:"include_subordinates"`
	Concurrency         int      `json:"concurrency,omitempty"`
	BatchSize           int      `json:"batch_size,omitempty"`
	TimeShift           float64  `json:"time_shift,omitempty"`
	Script              []string `json:"script,omitempty"`
	LogTail             int      `json:"log_tail,omitempty"`
	SaveRaw             bool     `json:"save_raw"`

	// OnRecord 每台设备完成后回调（串行调用）
	OnRecord func(Record) `json:"-"`
}

// ScanReport 扫描汇总
type ScanReport struct {
	TaskID         string        `json:"task_id"`
	Action         string        `json:"action"`
	Status         string        `json:"status"`
	Total          int           `json:"total"`
	Connected      int           `json:"connected"`
	Unreachable    int           `json:"unreachable"`
	Documents      int           `json:"documents"`
	Commands       int           `json:"commands"`
	FailedCommands int           `json:"failed_commands"`
	Files          []string      `json:"files"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
}

// BatchService 批量扫描服务：按批次并发连接设备、执行动作并持久化结果
type BatchService struct {
	cfg     *config.Config
	dialer  session.Dialer
	storage StorageWriter

	mu      sync.RWMutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewBatchService 创建批量扫描服务，使用 SSH 拨号
func NewBatchService(cfg *config.Config) *BatchService {
	return &BatchService{
		cfg:     cfg,
		dialer:  session.SSHDialer{Config: cfg.SSHClient(), Port: cfg.SSH.Port},
		storage: NewStorageWriter(cfg.Storage),
		running: make(map[string]context.CancelFunc),
	}
}

// WithDialer 替换拨号器
func (s *BatchService) WithDialer(d session.Dialer) *BatchService {
	s.dialer = d
	return s
}

// NewRequest 以配置中的 scan 段为默认值构造请求
func (s *BatchService) NewRequest(targets []Target) ScanRequest {
	sc := s.cfg.Scan
	return ScanRequest{
		Action:              sc.Action,
		Targets:             targets,
		Families:            append([]string(nil), sc.Families...),
		IncludeSubordinates: sc.IncludeSubordinates,
		Concurrency:         sc.Concurrency,
		BatchSize:           sc.BatchSize,
		TimeShift:           sc.TimeShift,
		LogTail:             sc.LogTail,
		SaveRaw:             sc.SaveRaw,
	}
}

func (r *ScanRequest) normalize(cfg config.ScanConfig) error {
	switch r.Action {
	case ActionScan, ActionShow, ActionSetTime, ActionScript:
	case "":
		r.Action = cfg.Action
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	if len(r.Targets) == 0 {
		return errors.New("no targets")
	}
	if r.Action == ActionScript && len(r.Script) == 0 {
		return errors.New("script action requires at least one command")
	}
	for _, f := range r.Families {
		if session.ParseFamily(f) == session.FamilyUnknown {
			return fmt.Errorf("unknown family %q", f)
		}
	}
	if len(r.Families) == 0 {
		r.Families = cfg.Families
	}
	if r.Concurrency <= 0 {
		r.Concurrency = cfg.Concurrency
	}
	if r.BatchSize <= 0 {
		r.BatchSize = cfg.BatchSize
	}
	if r.LogTail <= 0 {
		r.LogTail = cfg.LogTail
	}
	if r.TaskID == "" {
		r.TaskID = uuid.NewString()
	}
	return nil
}

func (r *ScanRequest) allows(f session.Family) bool {
	for _, name := range r.Families {
		if session.ParseFamily(name) == f {
			return true
		}
	}
	return false
}

// Submit 异步执行扫描，立即返回任务 ID
func (s *BatchService) Submit(req ScanRequest) (string, error) {
	if err := req.normalize(s.cfg.Scan); err != nil {
		return "", err
	}
	if err := s.createTask(req); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[req.TaskID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if _, err := s.run(ctx, req); err != nil {
			logger.Error("Scan task failed", "task_id", req.TaskID, "error", err)
		}
	}()
	return req.TaskID, nil
}

// Run 同步执行扫描
func (s *BatchService) Run(ctx context.Context, req ScanRequest) (*ScanReport, error) {
	if err := req.normalize(s.cfg.Scan); err != nil {
		return nil, err
	}
	if err := s.createTask(req); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.running[req.TaskID] = cancel
	s.mu.Unlock()
	return s.run(ctx, req)
}

// Cancel 取消运行中的任务；已开始的设备会完成当前命令后停止
func (s *BatchService) Cancel(taskID string) error {
	s.mu.RLock()
	cancel, ok := s.running[taskID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s not running", taskID)
	}
	cancel()
	return nil
}

// Running 运行中的任务数
func (s *BatchService) Running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.running)
}

// Wait 等待所有异步任务结束
func (s *BatchService) Wait() { s.wg.Wait() }

func (s *BatchService) run(ctx context.Context, req ScanRequest) (*ScanReport, error) {
	start := time.Now()
	metrics.ActiveScans.Inc()
	defer metrics.ActiveScans.Dec()
	defer func() {
		s.mu.Lock()
		delete(s.running, req.TaskID)
		s.mu.Unlock()
	}()

	report := &ScanReport{TaskID: req.TaskID, Action: req.Action, Status: model.TaskStatusRunning, Total: len(req.Targets)}
	s.updateTask(req.TaskID, map[string]interface{}{"status": model.TaskStatusRunning, "start_time": start})
	logger.Info("Scan started", "task_id", req.TaskID, "action", req.Action, "targets", len(req.Targets),
		"batch_size", req.BatchSize, "concurrency", req.Concurrency)

	exporter := NewCSVExporter(s.cfg.Export.Dir, req.TaskID, start.Format("2006-01-02"))
	var runErr error
	for i, batch := range Batches(req.Targets, req.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		logger.Info("Batch started", "task_id", req.TaskID, "batch", i, "size", len(batch))
		records := s.runBatch(ctx, req, start, batch)
		if err := s.persist(req.TaskID, records); err != nil {
			logger.Error("Persisting batch failed", "task_id", req.TaskID, "batch", i, "error", err)
			runErr = err
		}
		if err := exporter.Append(records); err != nil {
			logger.Error("Exporting batch failed", "task_id", req.TaskID, "batch", i, "error", err)
			runErr = err
		}
		for _, r := range records {
			report.add(r)
		}
		s.updateTask(req.TaskID, map[string]interface{}{
			"connected": report.Connected, "unreachable": report.Unreachable, "documents": report.Documents,
		})
	}

	report.Files = exporter.Files()
	report.Duration = time.Since(start)
	metrics.ScanDuration.Observe(report.Duration.Seconds())
	switch {
	case ctx.Err() != nil:
		report.Status = model.TaskStatusCancelled
	case runErr != nil:
		report.Status = model.TaskStatusFailed
		report.Error = runErr.Error()
	default:
		report.Status = model.TaskStatusSuccess
	}
	s.updateTask(req.TaskID, map[string]interface{}{
		"status": report.Status, "error_msg": report.Error, "end_time": time.Now(), "duration": report.Duration.Milliseconds(),
	})
	logger.Info("Scan finished", "task_id", req.TaskID, "status", report.Status, "connected", report.Connected,
		"unreachable", report.Unreachable, "documents", report.Documents, "duration", report.Duration)
	return report, runErr
}

func (r *ScanReport) add(rec Record) {
	if len(rec.Rows) > 0 && rec.Rows[0].State == StateUnreachable {
		r.Unreachable++
	} else {
		r.Connected++
	}
	r.Documents += len(rec.Documents)
	for _, c := range rec.Commands {
		r.Commands++
		if !c.Success {
			r.FailedCommands++
		}
	}
}

// runBatch 在一个批次内并发扫描，结果顺序与目标顺序一致
func (s *BatchService) runBatch(ctx context.Context, req ScanRequest, start time.Time, batch []Target) []Record {
	records := make([]Record, len(batch))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(req.Concurrency)
	for i, t := range batch {
		g.Go(func() error {
			rec := s.scanOne(ctx, req, start, t)
			records[i] = rec
			if req.OnRecord != nil {
				mu.Lock()
				req.OnRecord(rec)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// scanOne 连接一台设备并执行动作；不返回错误，所有失败都体现在结果中
func (s *BatchService) scanOne(ctx context.Context, req ScanRequest, start time.Time, t Target) Record {
	c := Connect(ctx, s.dialer, t, CommanderOptions{
		Session:      s.cfg.SessionOptions(),
		Subordinates: req.IncludeSubordinates,
		LogTail:      req.LogTail,
	})
	family := c.Identity().Family
	if c.Connected() && req.allows(family) {
		switch req.Action {
		case ActionShow:
			c.Show(ctx)
		case ActionSetTime:
			c.SetTimeOfDay(ctx, req.TimeShift)
		case ActionScript:
			c.RunScript(ctx, req.Script)
		}
	} else if c.Connected() {
		logger.Debug("Family excluded from scan", "address", t.Address, "family", family)
	}

	rec := Record{Address: t.Address, Rows: c.Report(), Documents: c.Documents(), Commands: c.Commands()}
	c.Disconnect()

	if req.SaveRaw && req.Action == ActionShow {
		rec.RawPaths = s.saveRaw(ctx, req.TaskID, start, rec.Commands)
	}
	for _, row := range rec.Rows {
		metrics.DevicesScanned.WithLabelValues(row.Family, string(row.State)).Inc()
	}
	return rec
}

// saveRaw 经存储写入器保存每条成功命令的原始输出，按 hop 分组
func (s *BatchService) saveRaw(ctx context.Context, taskID string, start time.Time, cmds []session.Command) map[string]collect.RawStorePaths {
	if s.storage == nil {
		return nil
	}
	out := make(map[string]collect.RawStorePaths)
	for _, c := range cmds {
		if !c.Success || c.Response == "" {
			continue
		}
		meta := StorageMeta{TaskID: taskID, Device: c.TargetID, Object: c.Text, StartedAt: start}
		obj, err := s.storage.Write(ctx, meta, c.Response, "")
		if err != nil {
			logger.Warn("Saving raw output failed", "target", c.TargetID, "command", c.Text, "error", err)
			continue
		}
		if out[c.TargetID] == nil {
			out[c.TargetID] = collect.RawStorePaths{}
		}
		out[c.TargetID][c.Text] = obj.URI
	}
	return out
}

func (s *BatchService) createTask(req ScanRequest) error {
	db := database.GetDB()
	if db == nil {
		return nil
	}
	addrs := make([]string, 0, len(req.Targets))
	for _, t := range req.Targets {
		addrs = append(addrs, t.Address)
	}
	task := model.ScanTask{
		ID:       req.TaskID,
		Action:   req.Action,
		Targets:  strings.Join(addrs, ","),
		Families: strings.Join(req.Families, ","),
		Status:   model.TaskStatusPending,
		Total:    len(req.Targets),
	}
	return database.WithRetry(func(db *gorm.DB) error { return db.Create(&task).Error }, 3, 0)
}

func (s *BatchService) updateTask(taskID string, fields map[string]interface{}) {
	if database.GetDB() == nil {
		return
	}
	err := database.WithRetry(func(db *gorm.DB) error {
		return db.Model(&model.ScanTask{}).Where("id = ?", taskID).Updates(fields).Error
	}, 3, 0)
	if err != nil {
		logger.Warn("Updating scan task failed", "task_id", taskID, "error", err)
	}
}

// persist 在一个短事务内写入批次的设备、命令与原子记录
func (s *BatchService) persist(taskID string, records []Record) error {
	if database.GetDB() == nil {
		return nil
	}
	var (
		results  []model.DeviceResult
		commands []model.CommandLog
		atoms    []model.AtomRow
	)
	for _, r := range records {
		for _, row := range r.Rows {
			results = append(results, deviceResult(taskID, row, r.RawPaths[row.TargetID]))
		}
		for _, c := range r.Commands {
			commands = append(commands, model.CommandLog{
				TaskID:     taskID,
				Address:    r.Address,
				TargetID:   c.TargetID,
				Command:    c.Text,
				Success:    c.Success,
				Kind:       string(c.Kind),
				Error:      c.Error,
				Response:   c.Response,
				DurationMS: c.Duration.Milliseconds(),
				SentAt:     c.Timestamp,
			})
		}
		for _, d := range r.Documents {
			atoms = append(atoms, atomRows(taskID, d)...)
		}
	}

	return database.TransactionWithRetry(func(tx *gorm.DB) error {
		if len(results) > 0 {
			if err := tx.CreateInBatches(results, 100).Error; err != nil {
				return err
			}
		}
		if len(commands) > 0 {
			if err := tx.CreateInBatches(commands, 100).Error; err != nil {
				return err
			}
		}
		if len(atoms) > 0 {
			if err := tx.CreateInBatches(atoms, 200).Error; err != nil {
				return err
			}
		}
		return nil
	}, 3, 0)
}

func deviceResult(taskID string, row ReportRow, raw collect.RawStorePaths) model.DeviceResult {
	errs, _ := json.Marshal(row.Errors)
	if row.Errors == nil {
		errs = []byte("[]")
	}
	return model.DeviceResult{
		TaskID:          taskID,
		Address:         row.Address,
		TargetID:        row.TargetID,
		Name:            row.Name,
		Model:           row.Model,
		SerialNumber:    row.SerialNumber,
		SoftwareVersion: row.SoftwareVersion,
		Family:          row.Family,
		State:           string(row.State),
		Connected:       row.Connected,
		Depth:           row.Depth,
		Commands:        row.Commands,
		Failed:          row.Failed,
		Atoms:           row.Atoms,
		LastError:       row.LastError,
		Errors:          string(errs),
		RawPaths:        raw.Marshal(),
	}
}

func atomRows(taskID string, d *atom.Document) []model.AtomRow {
	var out []model.AtomRow
	for _, s := range d.Sections {
		for i, a := range s.Atoms {
			fields, _ := json.Marshal(atom.Map(a))
			out = append(out, model.AtomRow{
				TaskID:   taskID,
				TargetID: d.TargetID,
				Name:     d.Name(),
				Section:  s.Name,
				Kind:     string(s.Kind),
				Seq:      i,
				Fields:   string(fields),
			})
		}
	}
	return out
}

// GetTask 查询任务
func (s *BatchService) GetTask(taskID string) (*model.ScanTask, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	var task model.ScanTask
	if err := db.Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListDevices 查询任务的设备结果
func (s *BatchService) ListDevices(taskID string) ([]model.DeviceResult, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	var rows []model.DeviceResult
	err := db.Where("task_id = ?", taskID).Order("id").Find(&rows).Error
	return rows, err
}

// ListCommands 查询任务的命令记录，target 为空时返回全部
func (s *BatchService) ListCommands(taskID, target string) ([]model.CommandLog, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	q := db.Where("task_id = ?", taskID)
	if target != "" {
		q = q.Where("address = ? OR target_id = ?", target, target)
	}
	var rows []model.CommandLog
	err := q.Order("id").Find(&rows).Error
	return rows, err
}

// ListAtoms 查询任务中某个分段的原子，section 为空时返回全部
func (s *BatchService) ListAtoms(taskID, section string) ([]model.AtomRow, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	q := db.Where("task_id = ?", taskID)
	if section != "" {
		q = q.Where("section = ?", section)
	}
	var rows []model.AtomRow
	err := q.Order("id").Find(&rows).Error
	return rows, err
}

package model

import (
	"time"
)

// ScanTask 批量扫描任务
type ScanTask struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Action      string    `json:"action" gorm:"type:varchar(16);not null"`
	Targets     string    `json:"targets" gorm:"type:text;not null"`
	Families    string    `json:"families" gorm:"type:varchar(64)"`
	Status      string    `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	Total       int       `json:"total" gorm:"not null;default:0"`
	Connected   int       `json:"connected" gorm:"not null;default:0"`
	Unreachable int       `json:"unreachable" gorm:"not null;default:0"`
	Documents   int       `json:"documents" gorm:"not null;default:0"`
	ErrorMsg    string    `json:"error_msg" gorm:"type:text"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Duration    int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (ScanTask) TableName() string {
	return "scan_tasks"
}

// TaskStatus 任务状态枚举
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusSuccess   = "success"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// DeviceResult 单台设备或单个隧道 hop 的扫描结果
type DeviceResult struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID          string    `json:"task_id" gorm:"type:varchar(64);not null;index"`
	Address         string    `json:"address" gorm:"type:varchar(128);not null;index"`
	TargetID        string    `json:"target_id" gorm:"type:varchar(256);not null"`
	Name            string    `json:"name" gorm:"type:varchar(128)"`
	Model           string    `json:"model" gorm:"type:varchar(64)"`
	SerialNumber    string    `json:"serial_number" gorm:"type:varchar(64)"`
	SoftwareVersion string    `json:"software_version" gorm:"type:varchar(64)"`
	Family          string    `json:"family" gorm:"type:varchar(16)"`
	State           string    `json:"state" gorm:"type:varchar(16)"`
	Connected       bool      `json:"connected"`
	Depth           int       `json:"depth"`
	Commands        int       `json:"commands"`
	Failed          int       `json:"failed"`
	Atoms           int       `json:"atoms"`
	LastError       string    `json:"last_error" gorm:"type:text"`
	Errors          string    `json:"errors" gorm:"type:text"`
	RawPaths        string    `json:"raw_paths" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (DeviceResult) TableName() string {
	return "device_results"
}

// CommandLog 下发命令记录
type CommandLog struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID     string    `json:"task_id" gorm:"type:varchar(64);not null;index"`
	Address    string    `json:"address" gorm:"type:varchar(128);not null"`
	TargetID   string    `json:"target_id" gorm:"type:varchar(256);not null"`
	Command    string    `json:"command" gorm:"type:text;not null"`
	Success    bool      `json:"success"`
	Kind       string    `json:"kind" gorm:"type:varchar(16)"`
	Error      string    `json:"error" gorm:"type:text"`
	Response   string    `json:"response" gorm:"type:text"`
	DurationMS int64     `json:"duration_ms"`
	SentAt     time.Time `json:"sent_at"`
}

// TableName 表名
func (CommandLog) TableName() string {
	return "command_logs"
}

// AtomRow 一个原子的扁平化记录，Fields 为 JSON 对象
type AtomRow struct {
	ID       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID   string `json:"task_id" gorm:"type:varchar(64);not null;index:idx_atom_task_section"`
	TargetID string `json:"target_id" gorm:"type:varchar(256);not null"`
	Name     string `json:"name" gorm:"type:varchar(128)"`
	Section  string `json:"section" gorm:"type:varchar(32);not null;index:idx_atom_task_section"`
	Kind     string `json:"kind" gorm:"type:varchar(16);not null"`
	Seq      int    `json:"seq"`
	Fields   string `json:"fields" gorm:"type:text"`
}

// TableName 表名
func (AtomRow) TableName() string {
	return "atom_rows"
}

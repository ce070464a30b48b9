package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
	"github.com/sshcollectorpro/batchscanner/pkg/ssh"
)

// EnvPrefix 环境变量前缀，例如 BATCHSCAN_SCAN_CONCURRENCY
const EnvPrefix = "BATCHSCAN"

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Session  SessionConfig  `mapstructure:"session"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      logger.Config  `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SimulateEnable 随服务启动模拟设备网络（simulate.yaml）
	SimulateEnable bool   `mapstructure:"simulate_enable"`
	SimulateConfig string `mapstructure:"simulate_config"`
}

// SSHConfig SSH 传输配置
type SSHConfig struct {
	Port           int           `mapstructure:"port"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	AuthTimeout    time.Duration `mapstructure:"auth_timeout"`
	KeepAlive      time.Duration `mapstructure:"keepalive"`
	TerminalType   string        `mapstructure:"terminal_type"`
	TerminalWidth  int           `mapstructure:"terminal_width"`
	TerminalHeight int           `mapstructure:"terminal_height"`
}

// SessionConfig 会话参数，零值由设备族默认值补齐
type SessionConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	PromptTimeout  time.Duration `mapstructure:"prompt_timeout"`
	PromptRetries  int           `mapstructure:"prompt_retries"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	ErrorHints     []string      `mapstructure:"error_hints"`
}

// ScanConfig 批量扫描配置
type ScanConfig struct {
	// Action scan | show | set-time | script；scan 只识别设备
	Action              string   `mapstructure:"action"`
	Families            []string `mapstructure:"families"`
	IncludeSubordinates bool     `mapstructure:"include_subordinates"`
	Concurrency         int      `mapstructure:"concurrency"`
	BatchSize           int      `mapstructure:"batch_size"`
	// TimeShift set-time 动作在本机时间上叠加的小时数
	TimeShift float64 `mapstructure:"time_shift"`
	// Script script 动作读取的脚本文件
	Script  string `mapstructure:"script"`
	LogTail int    `mapstructure:"log_tail"`
	// SaveRaw show 动作是否经存储写入器保存每条命令的原始输出
	SaveRaw bool `mapstructure:"save_raw"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	JournalMode     string        `mapstructure:"journal_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 原始输出与 CSV 的存储配置
type StorageConfig struct {
	// Backend local | minio
	Backend string             `mapstructure:"backend"`
	Local   LocalStorageConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalStorageConfig 本地存储配置
type LocalStorageConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	Prefix         string `mapstructure:"prefix"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// ExportConfig CSV 导出配置
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

var (
	mu           sync.RWMutex
	globalConfig *Config
	globalViper  *viper.Viper
)

// Load 加载配置文件；path 为空时在 ./configs 下查找 config.yaml，找不到则使用默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	globalConfig, globalViper = cfg, v
	mu.Unlock()
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_config", "simulate/simulate.yaml")

	// 终端高度足够大以避免设备分页
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.dial_timeout", 5500*time.Millisecond)
	v.SetDefault("ssh.auth_timeout", 6*time.Second)
	v.SetDefault("ssh.keepalive", 0)
	v.SetDefault("ssh.terminal_type", "vt100")
	v.SetDefault("ssh.terminal_width", 200)
	v.SetDefault("ssh.terminal_height", 5000)

	v.SetDefault("scan.action", "show")
	v.SetDefault("scan.families", []string{"EH", "BU", "TU", "TG"})
	v.SetDefault("scan.include_subordinates", true)
	v.SetDefault("scan.concurrency", 8)
	v.SetDefault("scan.batch_size", 64)
	v.SetDefault("scan.log_tail", 2)
	v.SetDefault("scan.save_raw", true)

	v.SetDefault("database.sqlite.path", "./data/batchscan.db")
	v.SetDefault("database.sqlite.busy_timeout", 15*time.Second)
	v.SetDefault("database.sqlite.journal_mode", "WAL")
	v.SetDefault("database.sqlite.max_idle_conns", 1)
	v.SetDefault("database.sqlite.max_open_conns", 1)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_dir", "./data/raw")
	v.SetDefault("storage.local.mkdir_if_missing", true)
	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "batchscan")

	v.SetDefault("export.dir", "./data/export")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/batchscan.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.Scan.Action {
	case "scan", "show", "set-time", "script":
	default:
		return fmt.Errorf("scan.action must be scan, show, set-time or script, got %q", c.Scan.Action)
	}
	for _, f := range c.Scan.Families {
		if session.ParseFamily(f) == session.FamilyUnknown {
			return fmt.Errorf("scan.families: unknown family %q", f)
		}
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be positive, got %d", c.Scan.Concurrency)
	}
	if c.Scan.BatchSize < 1 {
		return fmt.Errorf("scan.batch_size must be positive, got %d", c.Scan.BatchSize)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "local", "minio":
	default:
		return fmt.Errorf("storage.backend must be local or minio, got %q", c.Storage.Backend)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Set 替换全局配置
func Set(cfg *Config) {
	mu.Lock()
	globalConfig = cfg
	mu.Unlock()
}

// Watch 监听配置文件变更，重新解析成功后替换全局配置并回调；解析失败保留旧配置
func Watch(onChange func(*Config)) {
	mu.RLock()
	v := globalViper
	mu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Config reload rejected", "file", e.Name, "error", err)
			return
		}
		Set(cfg)
		logger.Info("Config reloaded", "file", e.Name)
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SSHClient 转换为传输层配置
func (c *Config) SSHClient() *ssh.Config {
	d := ssh.DefaultConfig()
	if c.SSH.DialTimeout > 0 {
		d.Timeout = c.SSH.DialTimeout
	}
	if c.SSH.AuthTimeout > 0 {
		d.AuthTimeout = c.SSH.AuthTimeout
	}
	d.KeepAlive = c.SSH.KeepAlive
	if c.SSH.TerminalType != "" {
		d.Terminal = c.SSH.TerminalType
	}
	if c.SSH.TerminalWidth > 0 {
		d.TermWidth = c.SSH.TerminalWidth
	}
	if c.SSH.TerminalHeight > 0 {
		d.TermHeight = c.SSH.TerminalHeight
	}
	return d
}

// SessionOptions 转换为会话参数；未配置的字段保持零值，由设备族默认值补齐
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		CommandTimeout: c.Session.CommandTimeout,
		IdleTimeout:    c.Session.IdleTimeout,
		PromptTimeout:  c.Session.PromptTimeout,
		PromptRetries:  c.Session.PromptRetries,
		ChunkSize:      c.Session.ChunkSize,
		ErrorHints:     c.Session.ErrorHints,
	}
}

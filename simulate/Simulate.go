package simulate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/batchscanner/pkg/logger"
)

// Config simulate.yaml 配置结构
type Config struct {
	Username  string                     `mapstructure:"username"`
	Password  string                     `mapstructure:"password"`
	HostKey   string                     `mapstructure:"host_key"`
	Outputs   string                     `mapstructure:"outputs"`
	Namespace map[string]NamespaceConfig `mapstructure:"namespace"`
	Devices   map[string]*Device         `mapstructure:"devices"`
}

// NamespaceConfig 每个 namespace 一个监听端口，对外呈现一台根设备
type NamespaceConfig struct {
	Listen  string `mapstructure:"listen"`
	Port    int    `mapstructure:"port"`
	MaxConn int    `mapstructure:"max_conn"`
	Root    string `mapstructure:"root"`
}

func (n NamespaceConfig) address() string {
	if n.Listen != "" {
		return n.Listen
	}
	return fmt.Sprintf(":%d", n.Port)
}

// Credentials 模拟设备的登录凭据
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) allow(user, pass string) bool {
	return strings.TrimSpace(user) == c.Username && strings.TrimSpace(pass) == c.Password
}

// DefaultConfig 内置示例网络，每台根设备一个 namespace
func DefaultConfig() *Config {
	return &Config{
		Username: "admin",
		Password: "admin",
		Namespace: map[string]NamespaceConfig{
			"tg": {Port: 2201, Root: "pop-1"},
			"eh": {Port: 2202, Root: "eh-1"},
			"bu": {Port: 2203, Root: "bu-1"},
			"tu": {Port: 2204, Root: "tu-1"},
		},
		Devices: map[string]*Device{
			"pop-1": {Model: "MH-T265", Serial: "F123456789", Version: "2.1.1-30521-ab12cd3", Children: []string{"cn-1"}},
			"cn-1":  {Model: "MH-T265", Serial: "F987654321", Version: "2.0.0-29000-ffaa001"},
			"eh-1":  {Model: "EH-710TX", Banner: "EH-710TX, S/N: F544140339, Ver: 7.7.12-13214-f614d18\n"},
			"bu-1":  {Model: "MH-B100"},
			"tu-1":  {Model: "MH-T200", Serial: "FT0000042", Version: "2.4.5-1820-aa11bb2"},
		},
	}
}

// LoadConfig 读取 simulate.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("username", "admin")
	v.SetDefault("password", "admin")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	return &cfg, nil
}

// Resolve 补全设备名称、输出目录，并按 children 建立隧道关系
func (c *Config) Resolve() (map[string]*Device, error) {
	outputs := outputsFS(c.Outputs)
	devices := make(map[string]*Device, len(c.Devices))
	for key, d := range c.Devices {
		if d == nil {
			continue
		}
		if d.Name == "" {
			d.Name = key
		}
		if sub, err := fs.Sub(outputs, d.Name); err == nil {
			d.WithOutputs(sub)
		}
		devices[d.Name] = d
	}
	for _, d := range devices {
		for _, name := range d.Children {
			child, ok := devices[name]
			if !ok {
				return nil, fmt.Errorf("device %s: unknown child %s", d.Name, name)
			}
			d.Link(child)
		}
	}
	return devices, nil
}

// Manager 管理多个 namespace 的 SSH 模拟服务
type Manager struct {
	servers map[string]*Server
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// Start 启动所有 namespace 的 SSH 模拟服务
func Start(cfg *Config) (*Manager, error) {
	devices, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	signer, err := loadOrCreateHostKey(cfg.HostKey)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{servers: make(map[string]*Server), ctx: ctx, cancel: cancel}
	creds := Credentials{Username: cfg.Username, Password: cfg.Password}

	for ns, nsCfg := range cfg.Namespace {
		root, ok := devices[nsCfg.Root]
		if !ok {
			logger.Error("Simulate: unknown root device", "namespace", ns, "root", nsCfg.Root)
			continue
		}
		srv := &Server{name: ns, cfg: nsCfg, root: root, creds: creds, hostKey: signer}
		if err := srv.Start(); err != nil {
			logger.Error("Simulate: start namespace server failed", "namespace", ns, "address", nsCfg.address(), "error", err)
			continue
		}
		m.servers[ns] = srv
		logger.Info("Simulate: namespace server started", "namespace", ns, "address", srv.Addr(), "root", root.Name)
	}
	if len(m.servers) == 0 {
		cancel()
		return nil, errors.New("no namespace server started")
	}
	return m, nil
}

// Addr 返回 namespace 的实际监听地址
func (m *Manager) Addr(ns string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.servers[ns]; ok {
		return s.Addr()
	}
	return ""
}

// Stop 停止所有模拟服务
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	for ns, srv := range m.servers {
		srv.Stop()
		logger.Info("Simulate: namespace server stopped", "namespace", ns)
	}
}

// Server 单个 namespace 的 SSH 服务
type Server struct {
	name     string
	cfg      NamespaceConfig
	root     *Device
	creds    Credentials
	hostKey  ssh.Signer
	listener net.Listener
	active   int
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewServer 创建以 root 为根设备的 SSH 服务，address 为空时监听随机本地端口
func NewServer(root *Device, creds Credentials, address string) (*Server, error) {
	if address == "" {
		address = "127.0.0.1:0"
	}
	signer, err := loadOrCreateHostKey("")
	if err != nil {
		return nil, err
	}
	return &Server{name: root.Name, cfg: NamespaceConfig{Listen: address}, root: root, creds: creds, hostKey: signer}, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start 开始监听并接受连接
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.address())
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Debug("Simulate: listener started", "namespace", s.name, "address", ln.Addr().String())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logger.Warn("Simulate: accept error", "error", err)
				time.Sleep(200 * time.Millisecond)
				continue
			}
			s.mu.Lock()
			if s.cfg.MaxConn > 0 && s.active >= s.cfg.MaxConn {
				s.mu.Unlock()
				_ = conn.Close()
				logger.Warn("Simulate: reject connection, max_conn exceeded", "namespace", s.name)
				continue
			}
			s.active++
			s.mu.Unlock()

			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.handleConn(c)
				s.mu.Lock()
				s.active--
				s.mu.Unlock()
			}(conn)
		}
	}()
	return nil
}

// Stop 关闭监听并等待连接结束
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) handleConn(nc net.Conn) {
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if s.creds.allow(meta.User(), string(password)) {
				return nil, nil
			}
			logger.Debug("Simulate: auth failed (password)", "user", meta.User())
			return nil, fmt.Errorf("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) > 0 && s.creds.allow(meta.User(), answers[0]) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
		// 横幅在认证前发送，认证失败时客户端仍可识别设备
		BannerCallback: func(ssh.ConnMetadata) string {
			return s.root.BannerText()
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.Debug("Simulate: SSH handshake failed", "namespace", s.name, "remote", nc.RemoteAddr().String(), "error", err)
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			logger.Error("Simulate: channel accept failed", "error", err)
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	done := make(chan struct{})
	started := false
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				_ = channel.Close()
				return
			}
			switch req.Type {
			case "pty-req", "env", "window-change":
				_ = req.Reply(req.WantReply, nil)
			case "shell":
				if started {
					_ = req.Reply(false, nil)
					continue
				}
				started = true
				_ = req.Reply(true, nil)
				go func() {
					defer close(done)
					if err := NewTerminal(s.root).Serve(channel); err != nil {
						logger.Debug("Simulate: shell ended", "namespace", s.name, "error", err)
					}
				}()
			default:
				_ = req.Reply(false, nil)
			}
		case <-done:
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			_ = channel.Close()
			return
		}
	}
}

var (
	hostKeyOnce   sync.Once
	hostKeySigner ssh.Signer
	hostKeyErr    error
)

// loadOrCreateHostKey 加载持久化的 host key；路径为空时使用进程内共享的临时密钥
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		hostKeyOnce.Do(func() {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				hostKeyErr = fmt.Errorf("failed to generate host key: %w", err)
				return
			}
			hostKeySigner, hostKeyErr = ssh.NewSignerFromKey(priv)
		})
		return hostKeySigner, hostKeyErr
	}

	if bs, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(bs)
		if err == nil {
			return signer, nil
		}
		logger.Warn("Simulate: host key parse failed, regenerating", "file", path, "error", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	logger.Info("Simulate: host key generated", "file", path)
	return ssh.NewSignerFromKey(priv)
}

package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	Timeout     time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	AuthTimeout time.Duration `mapstructure:"auth_timeout" json:"auth_timeout"`
	KeepAlive   time.Duration `mapstructure:"keepalive" json:"keepalive"`
	Terminal    string        `mapstructure:"terminal" json:"terminal"`
	TermWidth   int           `mapstructure:"term_width" json:"term_width"`
	TermHeight  int           `mapstructure:"term_height" json:"term_height"`
}

// DefaultConfig 默认配置，终端高度足够大以避免设备分页
func DefaultConfig() *Config {
	return &Config{
		Timeout:     5500 * time.Millisecond,
		AuthTimeout: 6 * time.Second,
		Terminal:    "vt100",
		TermWidth:   200,
		TermHeight:  5000,
	}
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Address host:port
func (i *ConnectionInfo) Address() string {
	return net.JoinHostPort(i.Host, fmt.Sprint(i.Port))
}

// Client SSH客户端
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	banner     strings.Builder
	stop       chan struct{}
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{config: config, stop: make(chan struct{})}
}

// Connect 连接并认证。认证失败时 Banner() 仍返回服务端在认证阶段发送的横幅
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	sshConfig := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
		BannerCallback: func(message string) error {
			c.banner.WriteString(message)
			return nil
		},
		Config: ssh.Config{
			// 兼容老固件的密钥交换算法
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"rsa-sha2-256",
			"rsa-sha2-512",
			"ssh-rsa",
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
		},
		Auth: []ssh.AuthMethod{
			ssh.Password(info.Password),
			// 部分固件只开放 keyboard-interactive
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = info.Password
				}
				return answers, nil
			}),
		},
	}

	address := info.Address()
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	// 握手与认证阶段的总时限
	handshake := c.config.Timeout + c.config.AuthTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < handshake {
		handshake = time.Until(dl)
	}
	if handshake > 0 {
		_ = conn.SetDeadline(time.Now().Add(handshake))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	go c.keepAlive()
	return nil
}

// Banner 认证阶段收到的横幅文本
func (c *Client) Banner() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.banner.String()
}

// Shell 交互式 PTY Shell 的原始字节流
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	client  *Client
	once    sync.Once
}

func (s *Shell) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *Shell) Write(p []byte) (int, error) { return s.stdin.Write(p) }

// Close 关闭 Shell 及其所属连接
func (s *Shell) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.session.Close()
		err = s.client.Close()
	})
	return err
}

// OpenShell 申请 PTY 并启动交互式 Shell
func (c *Client) OpenShell() (*Shell, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("SSH connection not established")
	}

	session, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	terms := []string{c.config.Terminal, "vt100", "xterm", "dumb"}
	var ptyErr error
	for _, term := range terms {
		if term == "" {
			continue
		}
		if ptyErr = session.RequestPty(term, c.config.TermHeight, c.config.TermWidth, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}
	return &Shell{session: session, stdin: stdin, stdout: stdout, client: c}, nil
}

// IsConnected 通过 keepalive 请求检测连接
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return false
	}
	_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Close 关闭连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.connection == nil {
		return nil
	}
	close(c.stop)
	err := c.connection.Close()
	c.connection = nil
	return err
}

func (c *Client) keepAlive() {
	if c.config.KeepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
		}
	}
}

package session

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Kind 会话失败的分类
type Kind string

const (
	KindConnection     Kind = "connection"
	KindAuthentication Kind = "authentication"
	KindTimeout        Kind = "timeout"
	KindProtocol       Kind = "protocol"
	KindParse          Kind = "parse"
	KindTunnel         Kind = "tunnel"
)

// Error 会话层与解析层统一的错误类型
// Target 为出错时的 hop 路径
type Error struct {
	Kind   Kind
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.Target != "" {
		b.WriteString(" on '")
		b.WriteString(e.Target)
		b.WriteString("'")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind err（或其包装链）是否为 k 类会话错误
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

// KindOf 返回 err 的分类，非会话错误时为空
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func ConnectionError(op, target string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Target: target, Err: err}
}

func AuthenticationError(op, target string, err error) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Target: target, Err: err}
}

func TimeoutError(op, target string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Target: target, Err: err}
}

func ProtocolError(op, target string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Target: target, Err: err}
}

func ParseError(op, target string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Target: target, Err: err}
}

func TunnelError(op, target string, err error) *Error {
	return &Error{Kind: KindTunnel, Op: op, Target: target, Err: err}
}

var (
	errRefused     = errors.New("connection refused")
	errReset       = errors.New("connection reset")
	errUnreachable = errors.New("host unreachable")
)

// ClassifyDialError 将拨号或握手失败归入错误分类
// 传输层原因统一为简短固定的文本，便于批量报告按原因归并
func ClassifyDialError(op, target string, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var ne net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ConnectionError(op, target, errRefused)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ConnectionError(op, target, errReset)
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return ConnectionError(op, target, errUnreachable)
	case errors.As(err, &ne) && ne.Timeout():
		return TimeoutError(op, target, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods remain"):
		return AuthenticationError(op, target, err)
	case strings.Contains(msg, "connection refused"):
		return ConnectionError(op, target, errRefused)
	case strings.Contains(msg, "connection reset"):
		return ConnectionError(op, target, errReset)
	}
	return ConnectionError(op, target, err)
}

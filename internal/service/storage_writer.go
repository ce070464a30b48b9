package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
)

// StoredObject 存储的对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// StorageWriter 抽象存储写入器
type StorageWriter interface {
	Write(ctx context.Context, meta StorageMeta, content string, contentType string) (StoredObject, error)
}

// StorageMeta 写入元数据，对象路径为 prefix/<日期_时间>/<task>/<device>/<file>
type StorageMeta struct {
	TaskID string
	// Device 设备名称，未知时使用地址
	Device string
	// Object 文件名；不含扩展名时追加 .txt
	Object string
	// StartedAt 任务开始时间，用于目录时间戳
	StartedAt time.Time
}

func (m StorageMeta) parts() []string {
	at := m.StartedAt
	if at.IsZero() {
		at = time.Now()
	}
	parts := []string{at.Format("20060102_150405")}
	if tid := strings.TrimSpace(m.TaskID); tid != "" {
		parts = append(parts, tid)
	}
	parts = append(parts, slug(m.Device))
	return parts
}

func (m StorageMeta) filename() string {
	base := slug(m.Object)
	if !strings.Contains(base, ".") {
		return base + ".txt"
	}
	return base
}

// NewStorageWriter 根据配置创建写入器（按 storage.backend 委派到本地或 MinIO）
func NewStorageWriter(cfg config.StorageConfig) StorageWriter {
	dw := &DelegatingStorageWriter{backend: strings.ToLower(strings.TrimSpace(cfg.Backend)), local: &LocalStorageWriter{cfg: cfg.Local}}
	if dw.backend == "minio" {
		dw.minio = initMinioWriter(cfg.Minio, cfg.Local.Prefix)
	}
	return dw
}

// DelegatingStorageWriter 按后端路由写入，MinIO 失败时回退到本地
type DelegatingStorageWriter struct {
	backend string
	local   *LocalStorageWriter
	minio   *MinioStorageWriter
}

func (w *DelegatingStorageWriter) Write(ctx context.Context, meta StorageMeta, content string, contentType string) (StoredObject, error) {
	if w.backend != "minio" {
		return w.local.Write(ctx, meta, content, contentType)
	}
	if w.minio == nil {
		logger.Warn("MinIO backend selected but client not initialized; falling back to local")
		obj, lerr := w.local.Write(ctx, meta, content, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		return obj, nil
	}
	obj, err := w.minio.Write(ctx, meta, content, contentType)
	if err != nil {
		logger.Warn("MinIO write failed; falling back to local", "error", err)
		objLocal, lerr := w.local.Write(ctx, meta, content, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
		}
		return objLocal, nil
	}
	return obj, nil
}

// LocalStorageWriter 本地文件写入
type LocalStorageWriter struct {
	cfg config.LocalStorageConfig
}

func (w *LocalStorageWriter) Write(ctx context.Context, meta StorageMeta, content string, contentType string) (StoredObject, error) {
	baseDir := strings.TrimSpace(w.cfg.BaseDir)
	if baseDir == "" {
		baseDir = "./data/raw"
	}
	parts := []string{baseDir}
	if p := strings.TrimSpace(w.cfg.Prefix); p != "" {
		parts = append(parts, p)
	}
	dirPath := filepath.Join(append(parts, meta.parts()...)...)

	if w.cfg.MkdirIfMissing {
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}

	fullPath := filepath.Join(dirPath, meta.filename())
	data := []byte(content)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}

	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentTypeOr(contentType),
	}, nil
}

// MinioStorageWriter MinIO 对象存储写入
type MinioStorageWriter struct {
	cfg      config.MinioConfig
	prefix   string
	client   *minio.Client
	endpoint string

	mu            sync.Mutex
	bucketEnsured bool
}

// initMinioWriter 初始化 MinIO 写入器（包含合理的超时设置与 bucket 校验）
func initMinioWriter(cfg config.MinioConfig, prefix string) *MinioStorageWriter {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Error("MinIO client initialization failed", "error", err)
		return nil
	}

	w := &MinioStorageWriter{cfg: cfg, prefix: strings.TrimSpace(prefix), client: client, endpoint: endpoint}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		logger.Warn("MinIO bucket not configured")
		return w
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.ensureBucket(ctx, bucket, 1); err != nil {
		logger.Warn("MinIO bucket ensure at init failed", "error", err)
	} else {
		w.bucketEnsured = true
	}
	return w
}

// ObjectName 对象路径（POSIX 风格，与本地目录层级一致）
func (w *MinioStorageWriter) ObjectName(meta StorageMeta) string {
	parts := meta.parts()
	if w.prefix != "" {
		parts = append([]string{w.prefix}, parts...)
	}
	return path.Join(path.Join(parts...), meta.filename())
}

// Write 将内容写入 MinIO，失败时指数退避重试
func (w *MinioStorageWriter) Write(ctx context.Context, meta StorageMeta, content string, contentType string) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	bucket := strings.TrimSpace(w.cfg.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}

	objectName := w.ObjectName(meta)
	data := []byte(content)
	ct := contentTypeOr(contentType)

	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}

	w.mu.Lock()
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket, 3); err != nil {
			w.mu.Unlock()
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}
	w.mu.Unlock()

	var lastErr error
	for _, wait := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		attemptCtx, cancel := attemptContext(ctx, wait)
		_, err := w.client.PutObject(attemptCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: ct})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return StoredObject{}, fmt.Errorf("minio put object cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: ct,
	}, nil
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioStorageWriter) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (w *MinioStorageWriter) ensureBucket(parent context.Context, bucket string, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := w.client.BucketExists(ctx, bucket)
		cancel()
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if exists {
			return nil
		}
		ctx2, cancel2 := attemptContext(parent, 10*time.Second)
		err = w.client.MakeBucket(ctx2, bucket, minio.MakeBucketOptions{})
		cancel2()
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("bucket ensure failed for %s", bucket)
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func contentTypeOr(ct string) string {
	if ct != "" {
		return ct
	}
	return "text/plain; charset=utf-8"
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// slug 将设备名称或命令转换为安全的文件名
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}

package handler

import (
	"bufio"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sshcollectorpro/batchscanner/internal/config"
)

// LogsHandler 日志查询处理器
type LogsHandler struct{}

func NewLogsHandler() *LogsHandler { return &LogsHandler{} }

// TailLogs 返回日志文件末尾 N 行，可按关键字、级别与扫描任务过滤
func (h *LogsHandler) TailLogs(c *gin.Context) {
	cfg := config.Get()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "CONFIG_MISSING", "message": "配置未初始化"})
		return
	}
	path := strings.TrimSpace(cfg.Log.FilePath)
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "LOG_PATH_EMPTY", "message": "日志路径未配置"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 || limit > 1000 { // 安全边界
		limit = 200
	}
	q := strings.TrimSpace(c.Query("q"))
	lvl := strings.TrimSpace(c.Query("level"))
	task := strings.TrimSpace(c.Query("task_id"))

	lines, err := readAllLines(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "READ_FAILED", "message": "读取日志失败: " + err.Error()})
		return
	}

	// 过滤
	filtered := make([]string, 0, len(lines))
	for _, ln := range lines {
		if q != "" && !strings.Contains(strings.ToLower(ln), strings.ToLower(q)) {
			continue
		}
		if lvl != "" && !matchField(ln, "level", logLevelName(lvl)) {
			continue
		}
		if task != "" && !matchField(ln, "task_id", task) {
			continue
		}
		filtered = append(filtered, ln)
	}

	// 取尾部
	start := 0
	if len(filtered) > limit {
		start = len(filtered) - limit
	}
	tail := filtered[start:]

	c.JSON(http.StatusOK, gin.H{
		"code":    "SUCCESS",
		"message": "获取日志成功",
		"data": gin.H{
			"path":  path,
			"count": len(tail),
			"lines": tail,
		},
	})
}

func readAllLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		return []string{}, nil
	}
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line
	res := make([]string, 0, 1024)
	for s.Scan() {
		res = append(res, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// logLevelName logrus 输出 warning 而不是 warn
func logLevelName(level string) string {
	level = strings.ToLower(level)
	if level == "warn" {
		return "warning"
	}
	return level
}

// matchField 匹配 logrus 的 json（"k":"v"）与 text（k=v）两种格式
func matchField(line, key, value string) bool {
	if key == "level" {
		line = strings.ToLower(line)
	}
	return strings.Contains(line, `"`+key+`":"`+value+`"`) ||
		strings.Contains(line, key+"="+value+" ") || strings.HasSuffix(line, key+"="+value) ||
		strings.Contains(line, key+`="`+value+`"`)
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/batchscanner/internal/database"
	"github.com/sshcollectorpro/batchscanner/internal/service"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
)

// maxTargets 单次请求展开后的目标上限
const maxTargets = 4096

// ScanHandler 批量扫描处理器
type ScanHandler struct {
	scanService *service.BatchService
}

// NewScanHandler 创建扫描处理器
func NewScanHandler(scanService *service.BatchService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// SubmitRequest 扫描请求。targets 每项可为地址、网段或地址区间；
// 未指定的字段取配置文件 scan 段的值。
type SubmitRequest struct {
	TaskID              string   `json:"task_id"`
	Action              string   `json:"action"`
	Targets             []string `json:"targets" binding:"required"`
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	Families            []string `json:"families"`
	IncludeSubordinates *bool    `json:"include_subordinates"`
	Concurrency         int      `json:"concurrency"`
	BatchSize           int      `json:"batch_size"`
	TimeShift           *float64 `json:"time_shift"`
	Script              []string `json:"script"`
	LogTail             int      `json:"log_tail"`
	SaveRaw             *bool    `json:"save_raw"`
	// Wait 为 true 时同步执行并返回汇总
	Wait bool `json:"wait"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (h *ScanHandler) buildRequest(body *SubmitRequest) (service.ScanRequest, error) {
	targets, err := service.ExpandTargets(body.Targets, strings.TrimSpace(body.Username), body.Password)
	if err != nil {
		return service.ScanRequest{}, err
	}
	if len(targets) > maxTargets {
		return service.ScanRequest{}, errors.New("too many targets")
	}
	req := h.scanService.NewRequest(targets)
	req.TaskID = strings.TrimSpace(body.TaskID)
	if body.Action != "" {
		req.Action = strings.ToLower(strings.TrimSpace(body.Action))
	}
	if len(body.Families) > 0 {
		req.Families = body.Families
	}
	if body.IncludeSubordinates != nil {
		req.IncludeSubordinates = *body.IncludeSubordinates
	}
	if body.Concurrency > 0 {
		req.Concurrency = body.Concurrency
	}
	if body.BatchSize > 0 {
		req.BatchSize = body.BatchSize
	}
	if body.TimeShift != nil {
		req.TimeShift = *body.TimeShift
	}
	if body.LogTail > 0 {
		req.LogTail = body.LogTail
	}
	if body.SaveRaw != nil {
		req.SaveRaw = *body.SaveRaw
	}
	req.Script = body.Script
	return req, nil
}

// Submit 提交批量扫描任务
// @Summary 提交批量扫描
// @Tags scan
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "扫描请求"
// @Success 202 {object} SuccessResponse "已受理"
// @Success 200 {object} service.ScanReport "同步执行结果"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Router /api/v1/scans [post]
func (h *ScanHandler) Submit(c *gin.Context) {
	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Error("Invalid scan request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: "请求参数无效: " + err.Error()})
		return
	}
	req, err := h.buildRequest(&body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_TARGETS", Message: err.Error()})
		return
	}

	if body.Wait {
		report, err := h.scanService.Run(c.Request.Context(), req)
		if report == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_FAILED", Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "扫描完成", Data: report})
		return
	}

	taskID, err := h.scanService.Submit(req)
	if err != nil {
		logger.Error("Scan submission rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{
		Code:    "ACCEPTED",
		Message: "任务已提交",
		Data:    gin.H{"task_id": taskID, "targets": len(req.Targets)},
	})
}

// GetTask 获取任务状态
// @Router /api/v1/scans/{task_id} [get]
func (h *ScanHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	task, err := h.scanService.GetTask(taskID)
	if err != nil {
		h.lookupFailed(c, taskID, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取任务成功", Data: task})
}

// CancelTask 取消运行中的任务
// @Router /api/v1/scans/{task_id}/cancel [post]
func (h *ScanHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("task_id")
	if err := h.scanService.Cancel(taskID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "TASK_NOT_RUNNING", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "任务已取消", Data: gin.H{"task_id": taskID}})
}

// ListDevices 任务的设备结果（每台设备或隧道 hop 一行）
// @Router /api/v1/scans/{task_id}/devices [get]
func (h *ScanHandler) ListDevices(c *gin.Context) {
	taskID := c.Param("task_id")
	if _, err := h.scanService.GetTask(taskID); err != nil {
		h.lookupFailed(c, taskID, err)
		return
	}
	rows, err := h.scanService.ListDevices(taskID)
	h.list(c, rows, err)
}

// ListCommands 任务的命令记录，可按 target（地址或 hop 路径）过滤
// @Router /api/v1/scans/{task_id}/commands [get]
func (h *ScanHandler) ListCommands(c *gin.Context) {
	taskID := c.Param("task_id")
	if _, err := h.scanService.GetTask(taskID); err != nil {
		h.lookupFailed(c, taskID, err)
		return
	}
	rows, err := h.scanService.ListCommands(taskID, strings.TrimSpace(c.Query("target")))
	h.list(c, rows, err)
}

// ListAtoms 任务的解析结果，可按 section 过滤
// @Router /api/v1/scans/{task_id}/atoms [get]
func (h *ScanHandler) ListAtoms(c *gin.Context) {
	taskID := c.Param("task_id")
	if _, err := h.scanService.GetTask(taskID); err != nil {
		h.lookupFailed(c, taskID, err)
		return
	}
	rows, err := h.scanService.ListAtoms(taskID, strings.TrimSpace(c.Query("section")))
	h.list(c, rows, err)
}

func (h *ScanHandler) list(c *gin.Context, rows interface{}, err error) {
	if err != nil {
		logger.Error("Query failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "查询成功", Data: rows})
}

func (h *ScanHandler) lookupFailed(c *gin.Context, taskID string, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "TASK_NOT_FOUND", Message: "任务不存在: " + taskID})
		return
	}
	logger.Error("Failed to load task", "task_id", taskID, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
}

// Health 健康检查
// @Router /api/v1/health [get]
func (h *ScanHandler) Health(c *gin.Context) {
	if err := database.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "数据库不可用: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "服务正常",
		Data:    gin.H{"running_tasks": h.scanService.Running(), "database": database.GetStats()},
	})
}

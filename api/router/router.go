package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sshcollectorpro/batchscanner/api/handler"
	"github.com/sshcollectorpro/batchscanner/internal/service"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/pkg/metrics"
)

// Version 服务版本
const Version = "1.0.0"

// SetupRouter 设置路由
func SetupRouter(scanService *service.BatchService, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	scanHandler := handler.NewScanHandler(scanService)
	adminHandler := handler.NewAdminHandler()
	logsHandler := handler.NewLogsHandler()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "Siklu Batch Scanner",
			"version": Version,
			"status":  "running",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", scanHandler.Health)

		scans := v1.Group("/scans")
		{
			scans.POST("", scanHandler.Submit)
			scans.GET("/:task_id", scanHandler.GetTask)
			scans.POST("/:task_id/cancel", scanHandler.CancelTask)
			scans.GET("/:task_id/devices", scanHandler.ListDevices)
			scans.GET("/:task_id/commands", scanHandler.ListCommands)
			scans.GET("/:task_id/atoms", scanHandler.ListAtoms)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/families", adminHandler.GetFamilies)
			admin.GET("/scan-defaults", adminHandler.GetScanDefaults)
			admin.GET("/logs", logsHandler.TailLogs)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		requestID := c.GetString("request_id")
		method := c.Request.Method
		path := c.Request.URL.Path
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		userAgent := c.Request.UserAgent()

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", statusCode,
			"duration", duration,
			"client_ip", clientIP,
			"user_agent", userAgent,
		)

		if statusCode >= 500 {
			logger.Error("HTTP Error",
				"request_id", requestID,
				"method", method,
				"path", path,
				"status", statusCode,
				"duration", duration,
				"client_ip", clientIP,
			)
		}
	}
}

func generateRequestID() string {
	return uuid.NewString()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sshcollectorpro/batchscanner/api/router"
	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/internal/database"
	"github.com/sshcollectorpro/batchscanner/internal/service"
	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 configs/config.yaml）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Starting batch scanner server", "version", router.Version)
	logger.Info("Scan defaults", "action", cfg.Scan.Action, "families", strings.Join(cfg.Scan.Families, ","),
		"concurrency", cfg.Scan.Concurrency, "batch_size", cfg.Scan.BatchSize)

	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	scanService := service.NewBatchService(cfg)

	// 模拟设备网络（可选）
	var simMgr *simulate.Manager
	startSimulate := func() {
		sc, err := simulate.LoadConfig(cfg.Server.SimulateConfig)
		if err != nil {
			logger.Warn("Simulate: failed to load config", "path", cfg.Server.SimulateConfig, "error", err)
			return
		}
		mgr, err := simulate.Start(sc)
		if err != nil {
			logger.Warn("Simulate: failed to start", "error", err)
			return
		}
		simMgr = mgr
		ports := make([]string, 0, len(sc.Namespace))
		for ns := range sc.Namespace {
			ports = append(ports, fmt.Sprintf("%s=%s", ns, mgr.Addr(ns)))
		}
		logger.Info("Simulate: started", "namespaces", strings.Join(ports, ", "))
	}
	if cfg.Server.SimulateEnable {
		startSimulate()
	}
	defer func() {
		if simMgr != nil {
			simMgr.Stop()
		}
	}()

	r := router.SetupRouter(scanService, cfg.Server.Mode)
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 配置热更新：原地覆盖，保持服务持有的指针不变
	config.Watch(func(newCfg *config.Config) {
		*cfg = *newCfg
		if err := logger.Init(cfg.Log); err != nil {
			logger.Warn("Logger reload failed", "error", err)
		}
		switch {
		case cfg.Server.SimulateEnable && simMgr == nil:
			startSimulate()
		case !cfg.Server.SimulateEnable && simMgr != nil:
			simMgr.Stop()
			simMgr = nil
			logger.Info("Simulate: stopped by config reload")
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
	scanService.Wait()
}

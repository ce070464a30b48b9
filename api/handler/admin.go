package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/batchscanner/addone/collect"
	"github.com/sshcollectorpro/batchscanner/addone/interact"
	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

// AdminHandler 管理相关处理器
type AdminHandler struct{}

func NewAdminHandler() *AdminHandler { return &AdminHandler{} }

// FamilyProfile 一个设备族的生效参数
type FamilyProfile struct {
	Family         string          `json:"family"`
	Options        session.Options `json:"options"`
	SupportsTunnel bool            `json:"supports_tunnel"`
	ShowCommands   []string        `json:"show_commands"`
}

// GetFamilies 各设备族的生效会话参数（配置值叠加设备族默认值）与 show 命令
func (h *AdminHandler) GetFamilies(c *gin.Context) {
	cfg := config.Get()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "CONFIG_MISSING", "message": "配置未初始化"})
		return
	}
	base := cfg.SessionOptions()
	profiles := make([]FamilyProfile, 0, len(session.Families))
	for _, f := range session.Families {
		name := string(f)
		profiles = append(profiles, FamilyProfile{
			Family:         name,
			Options:        interact.Options(name, base),
			SupportsTunnel: interact.SupportsTunnel(name),
			ShowCommands:   collect.Get(name).ShowCommands(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "SUCCESS",
		"message": "获取设备族参数成功",
		"data":    profiles,
	})
}

// GetScanDefaults 当前生效的 scan 配置段
func (h *AdminHandler) GetScanDefaults(c *gin.Context) {
	cfg := config.Get()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "CONFIG_MISSING", "message": "配置未初始化"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "SUCCESS",
		"message": "获取扫描默认参数成功",
		"data":    cfg.Scan,
	})
}

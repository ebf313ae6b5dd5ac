// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/Corphon/ScriptDeskMCP/internal/config"
	"github.com/Corphon/ScriptDeskMCP/internal/di"
	"github.com/Corphon/ScriptDeskMCP/internal/remote"
	"github.com/Corphon/ScriptDeskMCP/internal/services"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
	"github.com/Corphon/ScriptDeskMCP/internal/utils"
)

// InitServices 按依赖顺序初始化全部服务并注册到容器
//
// 依赖顺序：日志 -> 待确认日志 -> 远端客户端 -> 合并/关联/重扫/解析 -> 状态存储
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "scriptdesk.log")); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	logger := utils.GetLogger()
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}

	pending, err := storage.NewPendingLog(filepath.Join(cfg.DataDir, "pending"), cfg.FreshnessWindow)
	if err != nil {
		return fmt.Errorf("初始化待确认日志失败: %w", err)
	}
	container.Register("pending_log", pending)

	var remoteStore services.ScreenplayRemote
	if cfg.RemoteBaseURL != "" {
		client, err := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteAPIKey)
		if err != nil {
			return fmt.Errorf("初始化远端客户端失败: %w", err)
		}
		remoteStore = client
		logger.Infof("使用远端实体API: %s", cfg.RemoteBaseURL)
	} else {
		// 未配置远端时退化为进程内存储，便于本地演示
		remoteStore = remote.NewMemoryStore()
		logger.Warnf("未配置 REMOTE_BASE_URL，使用内存远端")
	}
	container.Register("remote", remoteStore)

	policy := services.ReconcilePolicy{
		FreshnessWindow:   cfg.FreshnessWindow,
		TieBreakThreshold: cfg.TieBreakThreshold,
	}
	reconcile := services.NewReconcileService(policy, pending)
	container.Register("reconcile", reconcile)

	relationships := services.NewRelationshipService()
	container.Register("relationship", relationships)

	rescan := services.NewRescanService()
	container.Register("rescan", rescan)

	parser := services.NewParserService()
	container.Register("parser", parser)

	store := services.NewScreenplayService(remoteStore, reconcile, relationships, rescan, parser, pending)
	container.Register("screenplay", store)

	logger.Infof("服务初始化完成，共注册 %d 个服务", len(container.GetNames()))
	return nil
}

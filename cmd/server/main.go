// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ScriptDeskMCP/internal/api"
	"github.com/Corphon/ScriptDeskMCP/internal/app"
	"github.com/Corphon/ScriptDeskMCP/internal/config"
)

func main() {
	log.Println("启动 ScriptDeskMCP 服务器...")

	// 1. 加载基础配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载完成，端口: %s", cfg.Port)

	// 2. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Println("所有服务初始化完成")

	// 3. 设置路由（只获取服务，不创建）
	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("设置路由失败: %v", err)
	}
	log.Println("路由设置完成")

	// 4. 启动服务器
	log.Printf("服务器启动在端口 %s", cfg.Port)
	setupGracefulShutdown(router, cfg.Port)
}

// setupGracefulShutdown 启动服务器并在收到信号时优雅关闭
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("启动服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	log.Println("服务器优雅关闭完成")
}

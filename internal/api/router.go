// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ScriptDeskMCP/internal/config"
	"github.com/Corphon/ScriptDeskMCP/internal/di"
	"github.com/Corphon/ScriptDeskMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不创建新实例
	container := di.GetContainer()

	store, ok := container.Get("screenplay").(*services.ScreenplayService)
	if !ok {
		return nil, fmt.Errorf("剧本状态服务未正确初始化")
	}

	handler := NewHandler(store)

	hub := NewEventHub()
	store.Subscribe(hub.Broadcast)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	r.GET("/health", handler.Health)

	screenplay := r.Group("/api/screenplays/:id")
	{
		screenplay.GET("/scenes", handler.GetScenes)
		screenplay.POST("/scenes", handler.CreateScene)
		screenplay.POST("/scenes/refresh", handler.RefreshScenes)
		screenplay.PUT("/scenes/:sceneID", handler.UpdateScene)
		screenplay.DELETE("/scenes/:sceneID", handler.DeleteScene)
		screenplay.GET("/scenes/:sceneID/characters", handler.GetSceneCharacters)
		screenplay.GET("/scenes/:sceneID/location", handler.GetSceneLocation)

		screenplay.GET("/characters", handler.GetCharacters)
		screenplay.POST("/characters", handler.CreateCharacter)
		screenplay.POST("/characters/refresh", handler.RefreshCharacters)
		screenplay.PUT("/characters/:characterID", handler.UpdateCharacter)
		screenplay.DELETE("/characters/:characterID", handler.DeleteCharacter)
		screenplay.GET("/characters/:characterID/scenes", handler.GetCharacterScenes)

		screenplay.GET("/locations", handler.GetLocations)
		screenplay.POST("/locations", handler.CreateLocation)
		screenplay.POST("/locations/refresh", handler.RefreshLocations)
		screenplay.PUT("/locations/:locationID", handler.UpdateLocation)
		screenplay.DELETE("/locations/:locationID", handler.DeleteLocation)
		screenplay.GET("/locations/:locationID/scenes", handler.GetLocationScenes)

		screenplay.GET("/props", handler.GetProps)
		screenplay.POST("/props", handler.CreateProp)
		screenplay.POST("/props/refresh", handler.RefreshProps)
		screenplay.PUT("/props/:propID", handler.UpdateProp)
		screenplay.DELETE("/props/:propID", handler.DeleteProp)
		screenplay.GET("/props/:propID/scenes", handler.GetPropScenes)
		screenplay.POST("/props/:propID/scenes", handler.LinkPropScenes)

		screenplay.POST("/rescan", handler.RescanScript)
		screenplay.GET("/relationships", handler.GetRelationships)
		screenplay.POST("/relationships/sync", handler.SyncRelationships)

		screenplay.GET("/ws", hub.HandleWebSocket)
	}

	return r, nil
}

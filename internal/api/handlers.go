// internal/api/handlers.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/services"
)

// Handler API处理器
type Handler struct {
	store  *services.ScreenplayService
	helper *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(store *services.ScreenplayService) *Handler {
	return &Handler{
		store:  store,
		helper: NewResponseHelper(),
	}
}

// ---------------------------------------------------
// 场景

// GetScenes 获取场景集合
func (h *Handler) GetScenes(c *gin.Context) {
	h.helper.Success(c, h.store.Scenes(c.Param("id")))
}

// CreateScene 创建场景
func (h *Handler) CreateScene(c *gin.Context) {
	var scene models.Scene
	if err := c.ShouldBindJSON(&scene); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	created, err := h.store.CreateScene(c.Request.Context(), c.Param("id"), scene)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Created(c, created)
}

// UpdateScene 更新场景
func (h *Handler) UpdateScene(c *gin.Context) {
	var scene models.Scene
	if err := c.ShouldBindJSON(&scene); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}
	scene.ID = c.Param("sceneID")

	updated, err := h.store.UpdateScene(c.Request.Context(), c.Param("id"), scene)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, updated)
}

// DeleteScene 删除场景
func (h *Handler) DeleteScene(c *gin.Context) {
	result, err := h.store.DeleteScene(c.Request.Context(), c.Param("id"), c.Param("sceneID"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	if !result.Success {
		h.helper.NotFound(c, result.Error)
		return
	}
	h.helper.Success(c, result)
}

// RefreshScenes 刷新场景集合
func (h *Handler) RefreshScenes(c *gin.Context) {
	scenes, diag, err := h.store.RefreshScenes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, gin.H{"scenes": scenes, "diagnostics": diag})
}

// GetSceneCharacters 获取场景引用的角色
func (h *Handler) GetSceneCharacters(c *gin.Context) {
	h.helper.Success(c, h.store.GetSceneCharacters(c.Param("id"), c.Param("sceneID")))
}

// GetSceneLocation 获取场景的场地
func (h *Handler) GetSceneLocation(c *gin.Context) {
	location := h.store.GetSceneLocation(c.Param("id"), c.Param("sceneID"))
	if location == nil {
		h.helper.NotFound(c, "场景未关联场地")
		return
	}
	h.helper.Success(c, location)
}

// ---------------------------------------------------
// 角色

// GetCharacters 获取角色集合
func (h *Handler) GetCharacters(c *gin.Context) {
	h.helper.Success(c, h.store.Characters(c.Param("id")))
}

// CreateCharacter 创建角色
func (h *Handler) CreateCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	created, err := h.store.CreateCharacter(c.Request.Context(), c.Param("id"), character)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Created(c, created)
}

// UpdateCharacter 更新角色
func (h *Handler) UpdateCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}
	character.ID = c.Param("characterID")

	updated, err := h.store.UpdateCharacter(c.Request.Context(), c.Param("id"), character)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, updated)
}

// DeleteCharacter 删除角色
func (h *Handler) DeleteCharacter(c *gin.Context) {
	result, err := h.store.DeleteCharacter(c.Request.Context(), c.Param("id"), c.Param("characterID"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	if !result.Success {
		h.helper.NotFound(c, result.Error)
		return
	}
	h.helper.Success(c, result)
}

// RefreshCharacters 刷新角色集合
func (h *Handler) RefreshCharacters(c *gin.Context) {
	characters, diag, err := h.store.RefreshCharacters(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, gin.H{"characters": characters, "diagnostics": diag})
}

// GetCharacterScenes 获取角色出现的场景
func (h *Handler) GetCharacterScenes(c *gin.Context) {
	h.helper.Success(c, h.store.GetCharacterScenes(c.Param("id"), c.Param("characterID")))
}

// ---------------------------------------------------
// 场地

// GetLocations 获取场地集合
func (h *Handler) GetLocations(c *gin.Context) {
	h.helper.Success(c, h.store.Locations(c.Param("id")))
}

// CreateLocation 创建场地
func (h *Handler) CreateLocation(c *gin.Context) {
	var location models.Location
	if err := c.ShouldBindJSON(&location); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	created, err := h.store.CreateLocation(c.Request.Context(), c.Param("id"), location)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Created(c, created)
}

// UpdateLocation 更新场地
func (h *Handler) UpdateLocation(c *gin.Context) {
	var location models.Location
	if err := c.ShouldBindJSON(&location); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}
	location.ID = c.Param("locationID")

	updated, err := h.store.UpdateLocation(c.Request.Context(), c.Param("id"), location)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, updated)
}

// DeleteLocation 删除场地
func (h *Handler) DeleteLocation(c *gin.Context) {
	result, err := h.store.DeleteLocation(c.Request.Context(), c.Param("id"), c.Param("locationID"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	if !result.Success {
		h.helper.NotFound(c, result.Error)
		return
	}
	h.helper.Success(c, result)
}

// RefreshLocations 刷新场地集合
func (h *Handler) RefreshLocations(c *gin.Context) {
	locations, diag, err := h.store.RefreshLocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, gin.H{"locations": locations, "diagnostics": diag})
}

// GetLocationScenes 获取场地被使用的场景
func (h *Handler) GetLocationScenes(c *gin.Context) {
	h.helper.Success(c, h.store.GetLocationScenes(c.Param("id"), c.Param("locationID")))
}

// ---------------------------------------------------
// 道具

// GetProps 获取道具集合
func (h *Handler) GetProps(c *gin.Context) {
	h.helper.Success(c, h.store.Props(c.Param("id")))
}

// CreateProp 创建道具
func (h *Handler) CreateProp(c *gin.Context) {
	var prop models.Prop
	if err := c.ShouldBindJSON(&prop); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	created, err := h.store.CreateProp(c.Request.Context(), c.Param("id"), prop)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Created(c, created)
}

// UpdateProp 更新道具
func (h *Handler) UpdateProp(c *gin.Context) {
	var prop models.Prop
	if err := c.ShouldBindJSON(&prop); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}
	prop.ID = c.Param("propID")

	updated, err := h.store.UpdateProp(c.Request.Context(), c.Param("id"), prop)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, updated)
}

// DeleteProp 删除道具
func (h *Handler) DeleteProp(c *gin.Context) {
	result, err := h.store.DeleteProp(c.Request.Context(), c.Param("id"), c.Param("propID"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	if !result.Success {
		h.helper.NotFound(c, result.Error)
		return
	}
	h.helper.Success(c, result)
}

// RefreshProps 刷新道具集合
func (h *Handler) RefreshProps(c *gin.Context) {
	props, diag, err := h.store.RefreshProps(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, gin.H{"props": props, "diagnostics": diag})
}

// GetPropScenes 获取引用道具的场景
func (h *Handler) GetPropScenes(c *gin.Context) {
	h.helper.Success(c, h.store.GetPropScenes(c.Param("id"), c.Param("propID")))
}

// LinkPropScenes 原子调整道具与场景的关联
func (h *Handler) LinkPropScenes(c *gin.Context) {
	var req struct {
		LinkSceneIDs   []string `json:"link_scene_ids"`
		UnlinkSceneIDs []string `json:"unlink_scene_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	scenes, err := h.store.LinkPropToScenes(c.Request.Context(), c.Param("id"), c.Param("propID"),
		req.LinkSceneIDs, req.UnlinkSceneIDs)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, scenes)
}

// ---------------------------------------------------
// 重扫与关联图

// RescanScript 用新的剧本全文重扫
func (h *Handler) RescanScript(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求体格式无效: "+err.Error())
		return
	}

	result, err := h.store.RescanScript(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, result, "重扫完成")
}

// GetRelationships 获取派生关联图
func (h *Handler) GetRelationships(c *gin.Context) {
	h.helper.Success(c, h.store.Graph(c.Param("id")))
}

// SyncRelationships 把关联图推送到远端
func (h *Handler) SyncRelationships(c *gin.Context) {
	if err := h.store.SyncRelationships(c.Request.Context(), c.Param("id")); err != nil {
		h.helper.FromError(c, err)
		return
	}
	h.helper.Success(c, nil, "关联图已同步")
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.helper.Success(c, gin.H{"status": "ok"})
}

// internal/services/relationship_service.go
package services

import (
	"sort"
	"strings"
	"sync"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/utils"
)

// BuildRelationshipGraph 从三个独立实体集合重建关联图（纯函数）
//
// 悬空引用（场景标签指向已不存在的角色/场地）不是错误：
// 最终一致窗口内属预期现象，静默过滤并计入诊断。
// 无场景引用的角色/场地也会得到空关联条目，不会被省略。
func BuildRelationshipGraph(scenes []models.Scene, characters []models.Character, locations []models.Location) (*models.RelationshipGraph, models.ReconcileDiagnostics) {
	var diag models.ReconcileDiagnostics
	graph := models.NewRelationshipGraph()

	characterIDs := make(map[string]bool, len(characters))
	for i := range characters {
		characterIDs[characters[i].ID] = true
		graph.Characters[characters[i].ID] = models.CharacterRelations{
			AppearsInScenes: []string{},
			RelatedBeats:    []string{},
		}
	}

	locationIDs := make(map[string]bool, len(locations))
	for i := range locations {
		locationIDs[locations[i].ID] = true
		graph.Locations[locations[i].ID] = models.LocationRelations{Scenes: []string{}}
	}

	for i := range scenes {
		scene := &scenes[i]

		validChars := make([]string, 0, len(scene.Fountain.Tags.CharacterIDs))
		charSeen := make(map[string]bool)
		for _, charID := range scene.Fountain.Tags.CharacterIDs {
			if !characterIDs[charID] {
				diag.DroppedCharacterRefs++
				continue
			}
			if charSeen[charID] {
				continue
			}
			charSeen[charID] = true
			validChars = append(validChars, charID)
		}

		locationID := scene.Fountain.Tags.LocationID
		if locationID != "" && !locationIDs[locationID] {
			diag.DroppedLocationRefs++
			locationID = ""
		}

		graph.Scenes[scene.ID] = models.SceneRelations{
			CharacterIDs: validChars,
			LocationID:   locationID,
		}

		// 反向索引：无重复追加
		for _, charID := range validChars {
			rel := graph.Characters[charID]
			if !containsString(rel.AppearsInScenes, scene.ID) {
				rel.AppearsInScenes = append(rel.AppearsInScenes, scene.ID)
				graph.Characters[charID] = rel
			}
		}

		if locationID != "" {
			rel := graph.Locations[locationID]
			if !containsString(rel.Scenes, scene.ID) {
				rel.Scenes = append(rel.Scenes, scene.ID)
				graph.Locations[locationID] = rel
			}
		}
	}

	return graph, diag
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// RelationshipService 维护每个剧本的派生关联图
//
// 输入成员（按id集合）与上次完全一致时跳过重建并复用旧图——
// 这是契约的一部分而非优化：响应式消费方在每次状态变更时都会触发重建，
// 无短路会形成无限更新循环。
type RelationshipService struct {
	mutex      sync.RWMutex
	graphs     map[string]*models.RelationshipGraph
	signatures map[string]string
	logger     *utils.Logger
}

// NewRelationshipService 创建关联图服务
func NewRelationshipService() *RelationshipService {
	return &RelationshipService{
		graphs:     make(map[string]*models.RelationshipGraph),
		signatures: make(map[string]string),
		logger:     utils.GetLogger(),
	}
}

// Rebuild 重建指定剧本的关联图
// 返回图以及是否真正执行了重建（false 表示签名一致被短路）
func (s *RelationshipService) Rebuild(screenplayID string, scenes []models.Scene, characters []models.Character, locations []models.Location) (*models.RelationshipGraph, bool) {
	signature := membershipSignature(scenes, characters, locations)

	s.mutex.RLock()
	prevSig, hasSig := s.signatures[screenplayID]
	prevGraph := s.graphs[screenplayID]
	s.mutex.RUnlock()

	if hasSig && prevSig == signature && prevGraph != nil {
		return prevGraph, false
	}

	graph, diag := BuildRelationshipGraph(scenes, characters, locations)
	if diag.DroppedCharacterRefs > 0 || diag.DroppedLocationRefs > 0 {
		s.logger.Debugf("关联图 %s: 过滤悬空角色引用 %d 个, 悬空场地引用 %d 个",
			screenplayID, diag.DroppedCharacterRefs, diag.DroppedLocationRefs)
	}

	s.mutex.Lock()
	s.graphs[screenplayID] = graph
	s.signatures[screenplayID] = signature
	s.mutex.Unlock()

	return graph, true
}

// Invalidate 丢弃缓存的图与签名（实体内容变化但成员不变时使用）
func (s *RelationshipService) Invalidate(screenplayID string) {
	s.mutex.Lock()
	delete(s.graphs, screenplayID)
	delete(s.signatures, screenplayID)
	s.mutex.Unlock()
}

// Graph 返回当前缓存的关联图（可能为 nil）
func (s *RelationshipService) Graph(screenplayID string) *models.RelationshipGraph {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.graphs[screenplayID]
}

// membershipSignature 三个集合的成员签名：各自id排序后拼接
func membershipSignature(scenes []models.Scene, characters []models.Character, locations []models.Location) string {
	sceneIDs := make([]string, 0, len(scenes))
	for i := range scenes {
		sceneIDs = append(sceneIDs, scenes[i].ID)
	}
	charIDs := make([]string, 0, len(characters))
	for i := range characters {
		charIDs = append(charIDs, characters[i].ID)
	}
	locIDs := make([]string, 0, len(locations))
	for i := range locations {
		locIDs = append(locIDs, locations[i].ID)
	}

	sort.Strings(sceneIDs)
	sort.Strings(charIDs)
	sort.Strings(locIDs)

	return strings.Join(sceneIDs, ",") + "#" + strings.Join(charIDs, ",") + "#" + strings.Join(locIDs, ",")
}

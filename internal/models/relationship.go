// internal/models/relationship.go
package models

// SceneRelations 单个场景引用的实体
type SceneRelations struct {
	CharacterIDs []string `json:"characters"`
	LocationID   string   `json:"location,omitempty"`
}

// CharacterRelations 单个角色被哪些场景引用
type CharacterRelations struct {
	AppearsInScenes []string `json:"appears_in_scenes"`
	RelatedBeats    []string `json:"related_beats"`
}

// LocationRelations 单个场地被哪些场景引用
type LocationRelations struct {
	Scenes []string `json:"scenes"`
}

// RelationshipGraph 派生的实体关联图，唯一写入者是 RelationshipService
// 不变式：图中出现的每个 id 都对应当前内存集合中存在的实体
type RelationshipGraph struct {
	Scenes     map[string]SceneRelations     `json:"scenes"`
	Characters map[string]CharacterRelations `json:"characters"`
	Locations  map[string]LocationRelations  `json:"locations"`
	// Props 预留给后续的道具关联，始终为空映射，保证序列化结构稳定
	Props map[string]struct{} `json:"props"`
}

// NewRelationshipGraph 创建空的关联图
func NewRelationshipGraph() *RelationshipGraph {
	return &RelationshipGraph{
		Scenes:     make(map[string]SceneRelations),
		Characters: make(map[string]CharacterRelations),
		Locations:  make(map[string]LocationRelations),
		Props:      make(map[string]struct{}),
	}
}

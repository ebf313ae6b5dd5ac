// internal/services/remote.go
package services

import (
	"context"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// ScreenplayRemote 远端实体API的抽象
// 远端是事实来源，但读可能滞后于写（最终一致）；
// 传输细节、鉴权与重试都在实现内部，这里只关心实体语义。
type ScreenplayRemote interface {
	ListScenes(ctx context.Context, screenplayID string) ([]models.Scene, error)
	CreateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error)
	UpdateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error)
	DeleteScene(ctx context.Context, screenplayID, sceneID string) error
	BulkCreateScenes(ctx context.Context, screenplayID string, scenes []models.Scene) ([]models.Scene, error)
	DeleteAllScenes(ctx context.Context, screenplayID string) error

	ListCharacters(ctx context.Context, screenplayID string) ([]models.Character, error)
	CreateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error)
	UpdateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error)
	DeleteCharacter(ctx context.Context, screenplayID, characterID string) error
	BulkCreateCharacters(ctx context.Context, screenplayID string, characters []models.Character) ([]models.Character, error)
	DeleteAllCharacters(ctx context.Context, screenplayID string) error

	ListLocations(ctx context.Context, screenplayID string) ([]models.Location, error)
	CreateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error)
	UpdateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error)
	DeleteLocation(ctx context.Context, screenplayID, locationID string) error
	BulkCreateLocations(ctx context.Context, screenplayID string, locations []models.Location) ([]models.Location, error)
	DeleteAllLocations(ctx context.Context, screenplayID string) error

	ListProps(ctx context.Context, screenplayID string) ([]models.Prop, error)
	CreateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error)
	UpdateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error)
	DeleteProp(ctx context.Context, screenplayID, propID string) error
	BulkCreateProps(ctx context.Context, screenplayID string, props []models.Prop) ([]models.Prop, error)
	DeleteAllProps(ctx context.Context, screenplayID string) error

	SyncRelationships(ctx context.Context, screenplayID string, graph *models.RelationshipGraph) error

	// BatchPropAssociation 原子地建立/解除道具与场景的关联，返回更新后的场景
	BatchPropAssociation(ctx context.Context, screenplayID, propID string, linkSceneIDs, unlinkSceneIDs []string) ([]models.Scene, error)
}

// StoreEvent 状态存储提交一次变更后发布的事件
type StoreEvent struct {
	ScreenplayID string `json:"screenplay_id"`
	Kind         string `json:"kind"`   // scene / character / location / prop / graph
	Action       string `json:"action"` // created / updated / deleted / refreshed / rescanned / imported
	EntityID     string `json:"entity_id,omitempty"`
}

// ObserverFunc 注册到存储的观察者回调，在变更提交后同步调用
type ObserverFunc func(event StoreEvent)

// internal/remote/memory.go
package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// MemoryStore 远端实体API的内存实现
// 供演示程序和测试使用：行为与真实远端一致（分配规范id、整体替换等），
// 但数据只存在于进程内。SetError 可注入故障以驱动回滚路径。
type MemoryStore struct {
	mutex sync.Mutex

	scenes     map[string][]models.Scene
	characters map[string][]models.Character
	locations  map[string][]models.Location
	props      map[string][]models.Prop
	graphs     map[string]*models.RelationshipGraph

	err error
}

// NewMemoryStore 创建内存实现
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scenes:     make(map[string][]models.Scene),
		characters: make(map[string][]models.Character),
		locations:  make(map[string][]models.Location),
		props:      make(map[string][]models.Prop),
		graphs:     make(map[string]*models.RelationshipGraph),
	}
}

// SetError 注入故障：设置后所有调用返回该错误，传 nil 恢复
func (m *MemoryStore) SetError(err error) {
	m.mutex.Lock()
	m.err = err
	m.mutex.Unlock()
}

func (m *MemoryStore) fail() error {
	return m.err
}

func assignID(id string) string {
	if id == "" || len(id) >= 4 && id[:4] == "tmp_" {
		return uuid.NewString()
	}
	return id
}

// ---------------------------------------------------
// 场景

func (m *MemoryStore) ListScenes(_ context.Context, screenplayID string) ([]models.Scene, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.Scene{}, m.scenes[screenplayID]...), nil
}

func (m *MemoryStore) CreateScene(_ context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	scene.ID = assignID(scene.ID)
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = time.Now()
	}
	m.scenes[screenplayID] = append(m.scenes[screenplayID], scene)
	return &scene, nil
}

func (m *MemoryStore) UpdateScene(_ context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	list := m.scenes[screenplayID]
	for i := range list {
		if list[i].ID == scene.ID {
			list[i] = scene
			return &scene, nil
		}
	}
	m.scenes[screenplayID] = append(list, scene)
	return &scene, nil
}

func (m *MemoryStore) DeleteScene(_ context.Context, screenplayID, sceneID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}

	list := m.scenes[screenplayID]
	for i := range list {
		if list[i].ID == sceneID {
			m.scenes[screenplayID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) BulkCreateScenes(_ context.Context, screenplayID string, scenes []models.Scene) ([]models.Scene, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	created := make([]models.Scene, 0, len(scenes))
	for _, scene := range scenes {
		scene.ID = assignID(scene.ID)
		created = append(created, scene)
	}
	m.scenes[screenplayID] = append(m.scenes[screenplayID], created...)
	return created, nil
}

func (m *MemoryStore) DeleteAllScenes(_ context.Context, screenplayID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.scenes[screenplayID] = nil
	return nil
}

// ---------------------------------------------------
// 角色

func (m *MemoryStore) ListCharacters(_ context.Context, screenplayID string) ([]models.Character, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.Character{}, m.characters[screenplayID]...), nil
}

func (m *MemoryStore) CreateCharacter(_ context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	character.ID = assignID(character.ID)
	if character.CreatedAt.IsZero() {
		character.CreatedAt = time.Now()
	}
	m.characters[screenplayID] = append(m.characters[screenplayID], character)
	return &character, nil
}

func (m *MemoryStore) UpdateCharacter(_ context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	list := m.characters[screenplayID]
	for i := range list {
		if list[i].ID == character.ID {
			list[i] = character
			return &character, nil
		}
	}
	m.characters[screenplayID] = append(list, character)
	return &character, nil
}

func (m *MemoryStore) DeleteCharacter(_ context.Context, screenplayID, characterID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}

	list := m.characters[screenplayID]
	for i := range list {
		if list[i].ID == characterID {
			m.characters[screenplayID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) BulkCreateCharacters(_ context.Context, screenplayID string, characters []models.Character) ([]models.Character, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	created := make([]models.Character, 0, len(characters))
	for _, character := range characters {
		character.ID = assignID(character.ID)
		created = append(created, character)
	}
	m.characters[screenplayID] = append(m.characters[screenplayID], created...)
	return created, nil
}

func (m *MemoryStore) DeleteAllCharacters(_ context.Context, screenplayID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.characters[screenplayID] = nil
	return nil
}

// ---------------------------------------------------
// 场地

func (m *MemoryStore) ListLocations(_ context.Context, screenplayID string) ([]models.Location, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.Location{}, m.locations[screenplayID]...), nil
}

func (m *MemoryStore) CreateLocation(_ context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	location.ID = assignID(location.ID)
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now()
	}
	m.locations[screenplayID] = append(m.locations[screenplayID], location)
	return &location, nil
}

func (m *MemoryStore) UpdateLocation(_ context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	list := m.locations[screenplayID]
	for i := range list {
		if list[i].ID == location.ID {
			list[i] = location
			return &location, nil
		}
	}
	m.locations[screenplayID] = append(list, location)
	return &location, nil
}

func (m *MemoryStore) DeleteLocation(_ context.Context, screenplayID, locationID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}

	list := m.locations[screenplayID]
	for i := range list {
		if list[i].ID == locationID {
			m.locations[screenplayID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) BulkCreateLocations(_ context.Context, screenplayID string, locations []models.Location) ([]models.Location, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	created := make([]models.Location, 0, len(locations))
	for _, location := range locations {
		location.ID = assignID(location.ID)
		created = append(created, location)
	}
	m.locations[screenplayID] = append(m.locations[screenplayID], created...)
	return created, nil
}

func (m *MemoryStore) DeleteAllLocations(_ context.Context, screenplayID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.locations[screenplayID] = nil
	return nil
}

// ---------------------------------------------------
// 道具

func (m *MemoryStore) ListProps(_ context.Context, screenplayID string) ([]models.Prop, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.Prop{}, m.props[screenplayID]...), nil
}

func (m *MemoryStore) CreateProp(_ context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	prop.ID = assignID(prop.ID)
	if prop.CreatedAt.IsZero() {
		prop.CreatedAt = time.Now()
	}
	m.props[screenplayID] = append(m.props[screenplayID], prop)
	return &prop, nil
}

func (m *MemoryStore) UpdateProp(_ context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	list := m.props[screenplayID]
	for i := range list {
		if list[i].ID == prop.ID {
			list[i] = prop
			return &prop, nil
		}
	}
	m.props[screenplayID] = append(list, prop)
	return &prop, nil
}

func (m *MemoryStore) DeleteProp(_ context.Context, screenplayID, propID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}

	list := m.props[screenplayID]
	for i := range list {
		if list[i].ID == propID {
			m.props[screenplayID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) BulkCreateProps(_ context.Context, screenplayID string, props []models.Prop) ([]models.Prop, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	created := make([]models.Prop, 0, len(props))
	for _, prop := range props {
		prop.ID = assignID(prop.ID)
		created = append(created, prop)
	}
	m.props[screenplayID] = append(m.props[screenplayID], created...)
	return created, nil
}

func (m *MemoryStore) DeleteAllProps(_ context.Context, screenplayID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.props[screenplayID] = nil
	return nil
}

// ---------------------------------------------------
// 关联

func (m *MemoryStore) SyncRelationships(_ context.Context, screenplayID string, graph *models.RelationshipGraph) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.graphs[screenplayID] = graph
	return nil
}

func (m *MemoryStore) BatchPropAssociation(_ context.Context, screenplayID, propID string, linkSceneIDs, unlinkSceneIDs []string) ([]models.Scene, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}

	link := make(map[string]bool, len(linkSceneIDs))
	for _, id := range linkSceneIDs {
		link[id] = true
	}
	unlink := make(map[string]bool, len(unlinkSceneIDs))
	for _, id := range unlinkSceneIDs {
		unlink[id] = true
	}

	updated := make([]models.Scene, 0, len(linkSceneIDs)+len(unlinkSceneIDs))
	list := m.scenes[screenplayID]
	for i := range list {
		changed := false

		if link[list[i].ID] {
			exists := false
			for _, id := range list[i].Fountain.Tags.PropIDs {
				if id == propID {
					exists = true
					break
				}
			}
			if !exists {
				list[i].Fountain.Tags.PropIDs = append(list[i].Fountain.Tags.PropIDs, propID)
			}
			changed = true
		}

		if unlink[list[i].ID] {
			kept := list[i].Fountain.Tags.PropIDs[:0]
			for _, id := range list[i].Fountain.Tags.PropIDs {
				if id != propID {
					kept = append(kept, id)
				}
			}
			list[i].Fountain.Tags.PropIDs = kept
			changed = true
		}

		if changed {
			updated = append(updated, list[i])
		}
	}

	return updated, nil
}

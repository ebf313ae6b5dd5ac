// internal/services/screenplay_service.go
package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
	"github.com/Corphon/ScriptDeskMCP/internal/utils"
)

// screenplayState 单个剧本的内存状态
type screenplayState struct {
	scenes     []models.Scene
	characters []models.Character
	locations  []models.Location
	props      []models.Prop

	// generation 在每次提交的变更后递增；
	// 跨 await 恢复的读操作以它判断响应是否已过期
	generation int64
}

// ScreenplayService 剧本状态存储
// 持有四个实体集合与派生关联图的乐观视图，是全部组件读写的唯一共享资源。
// 每个变更操作：先乐观应用本地，再调远端，失败时恢复到变更前快照并重新抛错。
type ScreenplayService struct {
	remote        ScreenplayRemote
	reconcile     *ReconcileService
	relationships *RelationshipService
	rescan        *RescanService
	parser        *ParserService
	pending       *storage.PendingLog
	locks         *LockManager
	logger        *utils.Logger

	stateMutex sync.Mutex
	states     map[string]*screenplayState

	observerMutex sync.RWMutex
	observers     []ObserverFunc
}

// NewScreenplayService 创建剧本状态存储
func NewScreenplayService(remote ScreenplayRemote, reconcile *ReconcileService,
	relationships *RelationshipService, rescan *RescanService,
	parser *ParserService, pending *storage.PendingLog) *ScreenplayService {

	return &ScreenplayService{
		remote:        remote,
		reconcile:     reconcile,
		relationships: relationships,
		rescan:        rescan,
		parser:        parser,
		pending:       pending,
		locks:         NewLockManager(),
		logger:        utils.GetLogger(),
		states:        make(map[string]*screenplayState),
	}
}

// tempEntityID 生成本地临时id，远端确认后被规范id替换
func tempEntityID() string {
	return "tmp_" + uuid.NewString()
}

// IsTempID 判断是否为本地临时id
func IsTempID(id string) bool {
	return strings.HasPrefix(id, "tmp_")
}

// Subscribe 注册观察者回调
func (s *ScreenplayService) Subscribe(fn ObserverFunc) {
	s.observerMutex.Lock()
	s.observers = append(s.observers, fn)
	s.observerMutex.Unlock()
}

// notify 同步通知全部观察者
func (s *ScreenplayService) notify(event StoreEvent) {
	s.observerMutex.RLock()
	observers := make([]ObserverFunc, len(s.observers))
	copy(observers, s.observers)
	s.observerMutex.RUnlock()

	for _, fn := range observers {
		fn(event)
	}
}

// ensureState 获取（或初始化）剧本状态，从待确认日志恢复近期写入
func (s *ScreenplayService) ensureState(screenplayID string) *screenplayState {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if state, exists := s.states[screenplayID]; exists {
		return state
	}

	state := &screenplayState{
		scenes:     []models.Scene{},
		characters: []models.Character{},
		locations:  []models.Location{},
		props:      []models.Prop{},
	}

	if s.pending != nil {
		s.seedFromPendingLog(screenplayID, state)
	}

	s.states[screenplayID] = state
	return state
}

// seedFromPendingLog 进程重启后用窗口内的近期写入预热本地集合
func (s *ScreenplayService) seedFromPendingLog(screenplayID string, state *screenplayState) {
	for id, entry := range s.pending.RecentWrites(screenplayID, storage.KindScene) {
		var scene models.Scene
		if err := json.Unmarshal(entry.Entity, &scene); err != nil {
			s.logger.Warnf("恢复待确认场景失败 %s: %v", id, err)
			continue
		}
		state.scenes = append(state.scenes, scene)
	}
	state.scenes = DedupAndRenumberScenes(state.scenes)

	for id, entry := range s.pending.RecentWrites(screenplayID, storage.KindCharacter) {
		var character models.Character
		if err := json.Unmarshal(entry.Entity, &character); err != nil {
			s.logger.Warnf("恢复待确认角色失败 %s: %v", id, err)
			continue
		}
		state.characters = append(state.characters, character)
	}

	for id, entry := range s.pending.RecentWrites(screenplayID, storage.KindLocation) {
		var location models.Location
		if err := json.Unmarshal(entry.Entity, &location); err != nil {
			s.logger.Warnf("恢复待确认场地失败 %s: %v", id, err)
			continue
		}
		state.locations = append(state.locations, location)
	}

	for id, entry := range s.pending.RecentWrites(screenplayID, storage.KindProp) {
		var prop models.Prop
		if err := json.Unmarshal(entry.Entity, &prop); err != nil {
			s.logger.Warnf("恢复待确认道具失败 %s: %v", id, err)
			continue
		}
		state.props = append(state.props, prop)
	}
}

// commitLocked 提交一次变更：递增代数、重建关联图
// 调用方需持有剧本写锁；contentChanged 为真时强制重建（成员签名可能未变）
func (s *ScreenplayService) commitLocked(screenplayID string, state *screenplayState, contentChanged bool) {
	state.generation++
	if contentChanged {
		s.relationships.Invalidate(screenplayID)
	}
	s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
}

func (s *ScreenplayService) recordWrite(screenplayID string, kind storage.EntityKind, id string, entity interface{}) {
	if s.pending == nil {
		return
	}
	if err := s.pending.RecordWrite(screenplayID, kind, id, entity); err != nil {
		s.logger.Warnf("记录待确认写入失败 %s/%s: %v", kind, id, err)
	}
}

func (s *ScreenplayService) recordDelete(screenplayID string, kind storage.EntityKind, id string) {
	if s.pending == nil {
		return
	}
	if err := s.pending.RecordDelete(screenplayID, kind, id); err != nil {
		s.logger.Warnf("记录墓碑失败 %s/%s: %v", kind, id, err)
	}
}

// ---------------------------------------------------
// 只读访问器

// Scenes 返回场景集合的副本（按 Order 稠密排列）
func (s *ScreenplayService) Scenes(screenplayID string) []models.Scene {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()
	return cloneScenes(state.scenes)
}

// Characters 返回角色集合的副本
func (s *ScreenplayService) Characters(screenplayID string) []models.Character {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()
	return cloneCharacters(state.characters)
}

// Locations 返回场地集合的副本
func (s *ScreenplayService) Locations(screenplayID string) []models.Location {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()
	return cloneLocations(state.locations)
}

// Props 返回道具集合的副本
func (s *ScreenplayService) Props(screenplayID string) []models.Prop {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()
	return cloneProps(state.props)
}

// Graph 返回当前派生关联图（必要时先重建）
func (s *ScreenplayService) Graph(screenplayID string) *models.RelationshipGraph {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	return graph
}

// GetSceneCharacters 返回场景引用的角色实体
func (s *ScreenplayService) GetSceneCharacters(screenplayID, sceneID string) []models.Character {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	relations, exists := graph.Scenes[sceneID]
	if !exists {
		return []models.Character{}
	}

	byID := make(map[string]*models.Character, len(state.characters))
	for i := range state.characters {
		byID[state.characters[i].ID] = &state.characters[i]
	}

	result := make([]models.Character, 0, len(relations.CharacterIDs))
	for _, id := range relations.CharacterIDs {
		if c, ok := byID[id]; ok {
			result = append(result, *c)
		}
	}
	return result
}

// GetSceneLocation 返回场景的场地实体（无则为 nil）
func (s *ScreenplayService) GetSceneLocation(screenplayID, sceneID string) *models.Location {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	relations, exists := graph.Scenes[sceneID]
	if !exists || relations.LocationID == "" {
		return nil
	}

	for i := range state.locations {
		if state.locations[i].ID == relations.LocationID {
			loc := state.locations[i]
			return &loc
		}
	}
	return nil
}

// GetCharacterScenes 返回角色出现的场景列表
func (s *ScreenplayService) GetCharacterScenes(screenplayID, characterID string) []models.Scene {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	relations, exists := graph.Characters[characterID]
	if !exists {
		return []models.Scene{}
	}
	return s.scenesByIDsLocked(state, relations.AppearsInScenes)
}

// GetLocationScenes 返回场地被使用的场景列表
func (s *ScreenplayService) GetLocationScenes(screenplayID, locationID string) []models.Scene {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	relations, exists := graph.Locations[locationID]
	if !exists {
		return []models.Scene{}
	}
	return s.scenesByIDsLocked(state, relations.Scenes)
}

// GetPropScenes 返回引用道具的场景列表（道具侧无反向存储，按场景标签推导）
func (s *ScreenplayService) GetPropScenes(screenplayID, propID string) []models.Scene {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()

	result := make([]models.Scene, 0)
	for i := range state.scenes {
		if containsString(state.scenes[i].Fountain.Tags.PropIDs, propID) {
			result = append(result, state.scenes[i])
		}
	}
	return result
}

func (s *ScreenplayService) scenesByIDsLocked(state *screenplayState, ids []string) []models.Scene {
	byID := make(map[string]*models.Scene, len(state.scenes))
	for i := range state.scenes {
		byID[state.scenes[i].ID] = &state.scenes[i]
	}

	result := make([]models.Scene, 0, len(ids))
	for _, id := range ids {
		if scene, ok := byID[id]; ok {
			result = append(result, *scene)
		}
	}
	return result
}

// ---------------------------------------------------
// 场景变更操作

// CreateScene 创建场景：乐观加入 -> 远端创建 -> 规范记录替换临时记录
func (s *ScreenplayService) CreateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	if strings.TrimSpace(scene.Heading) == "" {
		return nil, apperrors.NewValidationError("场景标题不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := cloneScenes(state.scenes)

	now := time.Now()
	tempID := tempEntityID()
	scene.ID = tempID
	scene.CreatedAt = now
	scene.UpdatedAt = now
	if scene.Status == "" {
		scene.Status = models.SceneStatusDraft
	}

	// 乐观应用
	state.scenes = DedupAndRenumberScenes(append(state.scenes, scene))
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.CreateScene(ctx, screenplayID, scene)
	if err != nil {
		// 恢复到变更前快照后重新抛错
		state.scenes = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("创建场景失败，本地状态已回滚", err)
	}

	// await 之后重新读取当前集合，不信任挂起前捕获的值
	s.replaceSceneLocked(state, tempID, confirmed)
	state.scenes = DedupAndRenumberScenes(state.scenes)
	s.recordWrite(screenplayID, storage.KindScene, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "scene", Action: "created", EntityID: confirmed.ID})

	return confirmed, nil
}

// replaceSceneLocked 用远端规范记录替换临时记录（先按临时id，再按标题回退）
func (s *ScreenplayService) replaceSceneLocked(state *screenplayState, tempID string, confirmed *models.Scene) {
	for i := range state.scenes {
		if state.scenes[i].ID == tempID {
			state.scenes[i] = *confirmed
			return
		}
	}
	// 临时记录已被期间的合并覆盖，按标题匹配
	for i := range state.scenes {
		if strings.EqualFold(strings.TrimSpace(state.scenes[i].Heading), strings.TrimSpace(confirmed.Heading)) &&
			IsTempID(state.scenes[i].ID) {
			state.scenes[i] = *confirmed
			return
		}
	}
	state.scenes = append(state.scenes, *confirmed)
}

// UpdateScene 更新场景
func (s *ScreenplayService) UpdateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	if scene.ID == "" {
		return nil, apperrors.NewValidationError("场景id不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfScene(state.scenes, scene.ID)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("场景不存在: "+scene.ID, nil)
	}

	snapshot := cloneScenes(state.scenes)

	scene.UpdatedAt = time.Now()
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = state.scenes[idx].CreatedAt
	}
	state.scenes[idx] = scene
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.UpdateScene(ctx, screenplayID, scene)
	if err != nil {
		state.scenes = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("更新场景失败，本地状态已回滚", err)
	}

	if idx := indexOfScene(state.scenes, confirmed.ID); idx >= 0 {
		state.scenes[idx] = *confirmed
	}
	s.recordWrite(screenplayID, storage.KindScene, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "scene", Action: "updated", EntityID: confirmed.ID})

	return confirmed, nil
}

// DeleteScene 删除场景
// 删除不存在的实体是校验级失败，按结构化结果返回而非抛错
func (s *ScreenplayService) DeleteScene(ctx context.Context, screenplayID, sceneID string) (models.OperationResult, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfScene(state.scenes, sceneID)
	if idx < 0 {
		return models.Failed("场景不存在: " + sceneID), nil
	}

	snapshot := cloneScenes(state.scenes)

	state.scenes = append(state.scenes[:idx], state.scenes[idx+1:]...)
	state.scenes = DedupAndRenumberScenes(state.scenes)
	s.commitLocked(screenplayID, state, true)

	if err := s.remote.DeleteScene(ctx, screenplayID, sceneID); err != nil {
		state.scenes = snapshot
		s.commitLocked(screenplayID, state, true)
		return models.Failed("远端删除失败"), apperrors.NewRemoteError("删除场景失败，本地状态已回滚", err)
	}

	s.recordDelete(screenplayID, storage.KindScene, sceneID)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "scene", Action: "deleted", EntityID: sceneID})

	return models.OK(), nil
}

// ---------------------------------------------------
// 角色变更操作

// CreateCharacter 创建角色
func (s *ScreenplayService) CreateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	if strings.TrimSpace(character.Name) == "" {
		return nil, apperrors.NewValidationError("角色名称不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := cloneCharacters(state.characters)

	now := time.Now()
	tempID := tempEntityID()
	character.ID = tempID
	character.CreatedAt = now
	character.UpdatedAt = now
	if character.Type == "" {
		character.Type = models.CharacterTypeSupporting
	}
	if character.ArcStatus == "" {
		character.ArcStatus = models.ArcStatusIntroduced
	}

	state.characters = append(state.characters, character)
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.CreateCharacter(ctx, screenplayID, character)
	if err != nil {
		state.characters = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("创建角色失败，本地状态已回滚", err)
	}

	replaced := false
	for i := range state.characters {
		if state.characters[i].ID == tempID {
			state.characters[i] = *confirmed
			replaced = true
			break
		}
	}
	if !replaced {
		// 临时id不在了（期间被刷新合并），按名称匹配
		for i := range state.characters {
			if strings.EqualFold(state.characters[i].Name, confirmed.Name) {
				state.characters[i] = *confirmed
				replaced = true
				break
			}
		}
	}
	if !replaced {
		state.characters = append(state.characters, *confirmed)
	}

	s.recordWrite(screenplayID, storage.KindCharacter, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "character", Action: "created", EntityID: confirmed.ID})

	return confirmed, nil
}

// UpdateCharacter 更新角色
func (s *ScreenplayService) UpdateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	if character.ID == "" {
		return nil, apperrors.NewValidationError("角色id不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfCharacter(state.characters, character.ID)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("角色不存在: "+character.ID, nil)
	}

	snapshot := cloneCharacters(state.characters)

	character.UpdatedAt = time.Now()
	if character.CreatedAt.IsZero() {
		character.CreatedAt = state.characters[idx].CreatedAt
	}
	state.characters[idx] = character
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.UpdateCharacter(ctx, screenplayID, character)
	if err != nil {
		state.characters = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("更新角色失败，本地状态已回滚", err)
	}

	if idx := indexOfCharacter(state.characters, confirmed.ID); idx >= 0 {
		state.characters[idx] = *confirmed
	}
	s.recordWrite(screenplayID, storage.KindCharacter, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "character", Action: "updated", EntityID: confirmed.ID})

	return confirmed, nil
}

// DeleteCharacter 删除角色并洗掉关联图中的全部引用
func (s *ScreenplayService) DeleteCharacter(ctx context.Context, screenplayID, characterID string) (models.OperationResult, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfCharacter(state.characters, characterID)
	if idx < 0 {
		return models.Failed("角色不存在: " + characterID), nil
	}

	snapshot := cloneCharacters(state.characters)

	state.characters = append(state.characters[:idx], state.characters[idx+1:]...)
	s.commitLocked(screenplayID, state, true)

	if err := s.remote.DeleteCharacter(ctx, screenplayID, characterID); err != nil {
		state.characters = snapshot
		s.commitLocked(screenplayID, state, true)
		return models.Failed("远端删除失败"), apperrors.NewRemoteError("删除角色失败，本地状态已回滚", err)
	}

	s.recordDelete(screenplayID, storage.KindCharacter, characterID)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "character", Action: "deleted", EntityID: characterID})

	return models.OK(), nil
}

// ---------------------------------------------------
// 场地变更操作

// CreateLocation 创建场地
func (s *ScreenplayService) CreateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	if strings.TrimSpace(location.Name) == "" {
		return nil, apperrors.NewValidationError("场地名称不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := cloneLocations(state.locations)

	now := time.Now()
	tempID := tempEntityID()
	location.ID = tempID
	location.CreatedAt = now
	location.UpdatedAt = now
	if location.Type == "" {
		location.Type = models.LocationTypeInt
	}

	state.locations = append(state.locations, location)
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.CreateLocation(ctx, screenplayID, location)
	if err != nil {
		state.locations = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("创建场地失败，本地状态已回滚", err)
	}

	replaced := false
	for i := range state.locations {
		if state.locations[i].ID == tempID {
			state.locations[i] = *confirmed
			replaced = true
			break
		}
	}
	if !replaced {
		for i := range state.locations {
			if strings.EqualFold(state.locations[i].Name, confirmed.Name) {
				state.locations[i] = *confirmed
				replaced = true
				break
			}
		}
	}
	if !replaced {
		state.locations = append(state.locations, *confirmed)
	}

	s.recordWrite(screenplayID, storage.KindLocation, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "location", Action: "created", EntityID: confirmed.ID})

	return confirmed, nil
}

// UpdateLocation 更新场地
func (s *ScreenplayService) UpdateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	if location.ID == "" {
		return nil, apperrors.NewValidationError("场地id不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfLocation(state.locations, location.ID)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("场地不存在: "+location.ID, nil)
	}

	snapshot := cloneLocations(state.locations)

	location.UpdatedAt = time.Now()
	if location.CreatedAt.IsZero() {
		location.CreatedAt = state.locations[idx].CreatedAt
	}
	state.locations[idx] = location
	s.commitLocked(screenplayID, state, true)

	confirmed, err := s.remote.UpdateLocation(ctx, screenplayID, location)
	if err != nil {
		state.locations = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("更新场地失败，本地状态已回滚", err)
	}

	if idx := indexOfLocation(state.locations, confirmed.ID); idx >= 0 {
		state.locations[idx] = *confirmed
	}
	s.recordWrite(screenplayID, storage.KindLocation, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "location", Action: "updated", EntityID: confirmed.ID})

	return confirmed, nil
}

// DeleteLocation 删除场地
func (s *ScreenplayService) DeleteLocation(ctx context.Context, screenplayID, locationID string) (models.OperationResult, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfLocation(state.locations, locationID)
	if idx < 0 {
		return models.Failed("场地不存在: " + locationID), nil
	}

	snapshot := cloneLocations(state.locations)

	state.locations = append(state.locations[:idx], state.locations[idx+1:]...)
	s.commitLocked(screenplayID, state, true)

	if err := s.remote.DeleteLocation(ctx, screenplayID, locationID); err != nil {
		state.locations = snapshot
		s.commitLocked(screenplayID, state, true)
		return models.Failed("远端删除失败"), apperrors.NewRemoteError("删除场地失败，本地状态已回滚", err)
	}

	s.recordDelete(screenplayID, storage.KindLocation, locationID)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "location", Action: "deleted", EntityID: locationID})

	return models.OK(), nil
}

// ---------------------------------------------------
// 道具变更操作

// CreateProp 创建道具
func (s *ScreenplayService) CreateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	if strings.TrimSpace(prop.Name) == "" {
		return nil, apperrors.NewValidationError("道具名称不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := cloneProps(state.props)

	now := time.Now()
	tempID := tempEntityID()
	prop.ID = tempID
	prop.CreatedAt = now
	prop.UpdatedAt = now

	state.props = append(state.props, prop)
	s.commitLocked(screenplayID, state, false)

	confirmed, err := s.remote.CreateProp(ctx, screenplayID, prop)
	if err != nil {
		state.props = snapshot
		s.commitLocked(screenplayID, state, false)
		return nil, apperrors.NewRemoteError("创建道具失败，本地状态已回滚", err)
	}

	replaced := false
	for i := range state.props {
		if state.props[i].ID == tempID {
			state.props[i] = *confirmed
			replaced = true
			break
		}
	}
	if !replaced {
		for i := range state.props {
			if strings.EqualFold(state.props[i].Name, confirmed.Name) {
				state.props[i] = *confirmed
				replaced = true
				break
			}
		}
	}
	if !replaced {
		state.props = append(state.props, *confirmed)
	}

	s.recordWrite(screenplayID, storage.KindProp, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, false)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "prop", Action: "created", EntityID: confirmed.ID})

	return confirmed, nil
}

// UpdateProp 更新道具
func (s *ScreenplayService) UpdateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	if prop.ID == "" {
		return nil, apperrors.NewValidationError("道具id不能为空", nil)
	}

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfProp(state.props, prop.ID)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("道具不存在: "+prop.ID, nil)
	}

	snapshot := cloneProps(state.props)

	prop.UpdatedAt = time.Now()
	if prop.CreatedAt.IsZero() {
		prop.CreatedAt = state.props[idx].CreatedAt
	}
	state.props[idx] = prop
	s.commitLocked(screenplayID, state, false)

	confirmed, err := s.remote.UpdateProp(ctx, screenplayID, prop)
	if err != nil {
		state.props = snapshot
		s.commitLocked(screenplayID, state, false)
		return nil, apperrors.NewRemoteError("更新道具失败，本地状态已回滚", err)
	}

	if idx := indexOfProp(state.props, confirmed.ID); idx >= 0 {
		state.props[idx] = *confirmed
	}
	s.recordWrite(screenplayID, storage.KindProp, confirmed.ID, confirmed)
	s.commitLocked(screenplayID, state, false)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "prop", Action: "updated", EntityID: confirmed.ID})

	return confirmed, nil
}

// DeleteProp 删除道具并从全部场景标签中摘除
func (s *ScreenplayService) DeleteProp(ctx context.Context, screenplayID, propID string) (models.OperationResult, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	idx := indexOfProp(state.props, propID)
	if idx < 0 {
		return models.Failed("道具不存在: " + propID), nil
	}

	propSnapshot := cloneProps(state.props)
	sceneSnapshot := cloneScenes(state.scenes)

	state.props = append(state.props[:idx], state.props[idx+1:]...)
	for i := range state.scenes {
		state.scenes[i].Fountain.Tags.PropIDs = removeString(state.scenes[i].Fountain.Tags.PropIDs, propID)
	}
	s.commitLocked(screenplayID, state, true)

	if err := s.remote.DeleteProp(ctx, screenplayID, propID); err != nil {
		state.props = propSnapshot
		state.scenes = sceneSnapshot
		s.commitLocked(screenplayID, state, true)
		return models.Failed("远端删除失败"), apperrors.NewRemoteError("删除道具失败，本地状态已回滚", err)
	}

	s.recordDelete(screenplayID, storage.KindProp, propID)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "prop", Action: "deleted", EntityID: propID})

	return models.OK(), nil
}

// ---------------------------------------------------
// 切片辅助

func cloneScenes(scenes []models.Scene) []models.Scene {
	out := make([]models.Scene, len(scenes))
	copy(out, scenes)
	return out
}

func cloneCharacters(characters []models.Character) []models.Character {
	out := make([]models.Character, len(characters))
	copy(out, characters)
	return out
}

func cloneLocations(locations []models.Location) []models.Location {
	out := make([]models.Location, len(locations))
	copy(out, locations)
	return out
}

func cloneProps(props []models.Prop) []models.Prop {
	out := make([]models.Prop, len(props))
	copy(out, props)
	return out
}

func indexOfScene(scenes []models.Scene, id string) int {
	for i := range scenes {
		if scenes[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfCharacter(characters []models.Character, id string) int {
	for i := range characters {
		if characters[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfLocation(locations []models.Location, id string) int {
	for i := range locations {
		if locations[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfProp(props []models.Prop, id string) int {
	for i := range props {
		if props[i].ID == id {
			return i
		}
	}
	return -1
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

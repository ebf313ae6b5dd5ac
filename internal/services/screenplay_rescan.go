// internal/services/screenplay_rescan.go
package services

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
)

// RescanScript 用新的剧本全文重扫一个剧本
//
// 流程：解析文本 -> 批量导入新角色/新场地 -> 将新场景匹配到旧场景并结转元数据
// -> 远端整体替换场景集合 -> 本地状态切换到新基线。
// 同一剧本同一时刻只允许一次重扫，第二个请求立即失败且无副作用。
// 远端替换完整成功之前本地集合保持不变。
func (s *ScreenplayService) RescanScript(ctx context.Context, screenplayID, text string) (*models.RescanResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("剧本文本不能为空", nil)
	}

	if err := s.rescan.Begin(screenplayID); err != nil {
		return nil, err
	}
	defer s.rescan.End(screenplayID)

	parse := s.parser.Parse(text)

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	// 1. 导入解析出的新角色（模糊匹配到已有角色的只记别名）
	newCharacters, aliasHits := s.importCharactersLocked(ctx, screenplayID, state, parse.CharacterNames)
	if len(newCharacters) > 0 {
		confirmed, err := s.remote.BulkCreateCharacters(ctx, screenplayID, newCharacters)
		if err != nil {
			return nil, apperrors.NewRemoteError("批量创建角色失败，重扫中止", err)
		}
		state.characters = append(state.characters, confirmed...)
	}
	s.applyAliasHitsLocked(ctx, screenplayID, state, aliasHits)

	// 2. 导入解析出的新场地
	newLocations := s.importLocationsLocked(state, parse)
	if len(newLocations) > 0 {
		confirmed, err := s.remote.BulkCreateLocations(ctx, screenplayID, newLocations)
		if err != nil {
			return nil, apperrors.NewRemoteError("批量创建场地失败，重扫中止", err)
		}
		state.locations = append(state.locations, confirmed...)
	}

	// 3. 匹配旧场景并结转元数据
	matched := s.rescan.MatchScenes(state.scenes, parse.Scenes)

	charByName := s.characterNameIndexLocked(state)
	locByName := s.locationNameIndexLocked(state)

	rebuilt := make([]models.Scene, 0, len(parse.Scenes))
	now := time.Now()
	for i := range parse.Scenes {
		scene := s.rescan.CarryMetadata(&parse.Scenes[i], matched[i])

		scene.Fountain.Tags.CharacterIDs = resolveCharacterIDs(parse.Scenes[i].CharacterNames, charByName)
		if id, ok := locByName[parse.Scenes[i].LocationName]; ok {
			scene.Fountain.Tags.LocationID = id
		}

		if scene.CreatedAt.IsZero() {
			scene.CreatedAt = now
		}
		scene.UpdatedAt = now
		rebuilt = append(rebuilt, scene)
	}
	rebuilt = DedupAndRenumberScenes(rebuilt)

	// 结转计数以去重后的最终列表为准：带旧id的是结转场景，其余是全新场景
	matchedCount := 0
	for i := range rebuilt {
		if rebuilt[i].ID != "" {
			matchedCount++
		}
	}

	// 4. 远端整体替换：先清空再批量写入，避免历史场景残留累积
	snapshot := cloneScenes(state.scenes)
	if err := s.remote.DeleteAllScenes(ctx, screenplayID); err != nil {
		return nil, apperrors.NewRemoteError("清空远端场景失败，重扫中止", err)
	}

	confirmed, err := s.remote.BulkCreateScenes(ctx, screenplayID, rebuilt)
	if err != nil {
		// 清空已生效但写入失败，尽力恢复旧集合
		if _, restoreErr := s.remote.BulkCreateScenes(ctx, screenplayID, snapshot); restoreErr != nil {
			s.logger.Errorf("重扫失败后恢复远端场景也失败 %s: %v", screenplayID, restoreErr)
		}
		return nil, apperrors.NewRemoteError("批量创建场景失败，重扫中止", err)
	}

	// 5. 切换到新基线：待确认日志整体作废
	state.scenes = DedupAndRenumberScenes(confirmed)
	if s.pending != nil {
		if err := s.pending.Clear(screenplayID); err != nil {
			s.logger.Warnf("清空待确认日志失败 %s: %v", screenplayID, err)
		}
	}
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "scene", Action: "rescanned"})

	return &models.RescanResult{
		Scenes:        cloneScenes(state.scenes),
		MatchedCount:  matchedCount,
		NewCount:      len(rebuilt) - matchedCount,
		NewCharacters: len(newCharacters),
		NewLocations:  len(newLocations),
	}, nil
}

// aliasHit 模糊匹配到已有角色的解析名
type aliasHit struct {
	characterID string
	alias       string
}

// importCharactersLocked 划分解析出的角色名：
// 与已有角色（含别名）精确或模糊匹配的记为别名，其余作为新角色待创建
func (s *ScreenplayService) importCharactersLocked(_ context.Context, _ string,
	state *screenplayState, names []string) ([]models.Character, []aliasHit) {

	newCharacters := make([]models.Character, 0)
	hits := make([]aliasHit, 0)
	now := time.Now()

	for _, name := range names {
		matchedID := ""
		for i := range state.characters {
			if characterAnswersTo(&state.characters[i], name) {
				matchedID = state.characters[i].ID
				break
			}
		}

		if matchedID != "" {
			hits = append(hits, aliasHit{characterID: matchedID, alias: name})
			continue
		}

		// 同一批新名字之间也要去重（"RIVERA" 和 "DETECTIVE RIVERA" 同时首次出现）
		duplicate := false
		for i := range newCharacters {
			if NamesSimilar(newCharacters[i].Name, name) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		newCharacters = append(newCharacters, models.Character{
			Name:      name,
			Type:      models.CharacterTypeSupporting,
			ArcStatus: models.ArcStatusIntroduced,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return newCharacters, hits
}

// applyAliasHitsLocked 在已有角色上登记新别名，远端同步尽力而为
func (s *ScreenplayService) applyAliasHitsLocked(ctx context.Context, screenplayID string,
	state *screenplayState, hits []aliasHit) {

	for _, hit := range hits {
		idx := indexOfCharacter(state.characters, hit.characterID)
		if idx < 0 {
			continue
		}

		c := &state.characters[idx]
		if strings.EqualFold(c.Name, hit.alias) || containsFold(c.Aliases, hit.alias) {
			continue
		}

		c.Aliases = append(c.Aliases, hit.alias)
		c.UpdatedAt = time.Now()

		if _, err := s.remote.UpdateCharacter(ctx, screenplayID, *c); err != nil {
			s.logger.Warnf("同步角色别名失败 %s/%s: %v", screenplayID, c.ID, err)
		}
	}
}

// importLocationsLocked 收集解析出的、本地尚无同名记录的新场地
func (s *ScreenplayService) importLocationsLocked(state *screenplayState, parse *models.ParseResult) []models.Location {
	existing := make(map[string]bool, len(state.locations))
	for i := range state.locations {
		existing[strings.ToUpper(strings.TrimSpace(state.locations[i].Name))] = true
	}

	// 场地类型取该场地首次出现的标题前缀
	typeByName := make(map[string]models.LocationType)
	for i := range parse.Scenes {
		name := parse.Scenes[i].LocationName
		if name == "" {
			continue
		}
		if _, seen := typeByName[name]; !seen {
			typeByName[name] = headingLocationType(parse.Scenes[i].Heading)
		}
	}

	newLocations := make([]models.Location, 0)
	now := time.Now()
	for _, name := range parse.LocationNames {
		if name == "" || existing[name] {
			continue
		}

		locType, ok := typeByName[name]
		if !ok {
			locType = models.LocationTypeInt
		}

		newLocations = append(newLocations, models.Location{
			Name:      name,
			Type:      locType,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return newLocations
}

// characterNameIndexLocked 角色名（含别名）-> id 的大写索引
func (s *ScreenplayService) characterNameIndexLocked(state *screenplayState) map[string]string {
	index := make(map[string]string, len(state.characters))
	for i := range state.characters {
		c := &state.characters[i]
		index[strings.ToUpper(strings.TrimSpace(c.Name))] = c.ID
		for _, alias := range c.Aliases {
			index[strings.ToUpper(strings.TrimSpace(alias))] = c.ID
		}
	}
	return index
}

// locationNameIndexLocked 场地名 -> id 的大写索引
func (s *ScreenplayService) locationNameIndexLocked(state *screenplayState) map[string]string {
	index := make(map[string]string, len(state.locations))
	for i := range state.locations {
		index[strings.ToUpper(strings.TrimSpace(state.locations[i].Name))] = state.locations[i].ID
	}
	return index
}

// resolveCharacterIDs 把解析出的角色提示名解析为角色id（先精确后模糊）
func resolveCharacterIDs(names []string, byName map[string]string) []string {
	ids := make([]string, 0, len(names))
	seen := make(map[string]bool)

	for _, name := range names {
		key := strings.ToUpper(strings.TrimSpace(name))

		id, ok := byName[key]
		if !ok {
			for indexed, candidate := range byName {
				if NamesSimilar(indexed, key) {
					id, ok = candidate, true
					break
				}
			}
		}
		if !ok || seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)
	}

	return ids
}

// characterAnswersTo 判断角色（按名称或任一别名）是否对应给定名称
func characterAnswersTo(c *models.Character, name string) bool {
	if NamesSimilar(c.Name, name) {
		return true
	}
	for _, alias := range c.Aliases {
		if NamesSimilar(alias, name) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// LinkPropToScenes 原子地调整道具与场景的关联
// 远端批量端点是唯一写入口，返回的场景整体替换本地同id记录。
func (s *ScreenplayService) LinkPropToScenes(ctx context.Context, screenplayID, propID string,
	linkSceneIDs, unlinkSceneIDs []string) ([]models.Scene, error) {

	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()

	if indexOfProp(state.props, propID) < 0 {
		return nil, apperrors.NewNotFoundError("道具不存在: "+propID, nil)
	}
	for _, sceneID := range append(append([]string{}, linkSceneIDs...), unlinkSceneIDs...) {
		if indexOfScene(state.scenes, sceneID) < 0 {
			return nil, apperrors.NewNotFoundError("场景不存在: "+sceneID, nil)
		}
	}

	snapshot := cloneScenes(state.scenes)

	for _, sceneID := range linkSceneIDs {
		idx := indexOfScene(state.scenes, sceneID)
		if !containsString(state.scenes[idx].Fountain.Tags.PropIDs, propID) {
			state.scenes[idx].Fountain.Tags.PropIDs = append(state.scenes[idx].Fountain.Tags.PropIDs, propID)
		}
	}
	for _, sceneID := range unlinkSceneIDs {
		idx := indexOfScene(state.scenes, sceneID)
		state.scenes[idx].Fountain.Tags.PropIDs = removeString(state.scenes[idx].Fountain.Tags.PropIDs, propID)
	}
	s.commitLocked(screenplayID, state, true)

	updated, err := s.remote.BatchPropAssociation(ctx, screenplayID, propID, linkSceneIDs, unlinkSceneIDs)
	if err != nil {
		state.scenes = snapshot
		s.commitLocked(screenplayID, state, true)
		return nil, apperrors.NewRemoteError("调整道具关联失败，本地状态已回滚", err)
	}

	for i := range updated {
		if idx := indexOfScene(state.scenes, updated[i].ID); idx >= 0 {
			state.scenes[idx] = updated[i]
		}
		s.recordWrite(screenplayID, storage.KindScene, updated[i].ID, &updated[i])
	}
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "prop", Action: "updated", EntityID: propID})

	return cloneScenes(state.scenes), nil
}

// SyncRelationships 把当前派生关联图推送到远端
func (s *ScreenplayService) SyncRelationships(ctx context.Context, screenplayID string) error {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)
	lock.RLock()
	graph, _ := s.relationships.Rebuild(screenplayID, state.scenes, state.characters, state.locations)
	lock.RUnlock()

	if err := s.remote.SyncRelationships(ctx, screenplayID, graph); err != nil {
		return apperrors.NewRemoteError("同步关联图失败", err)
	}

	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "graph", Action: "updated"})
	return nil
}

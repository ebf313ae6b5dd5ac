// internal/services/screenplay_refresh.go
package services

import (
	"context"
	"time"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// 刷新操作：拉取远端快照并与本地乐观集合合并。
// 网络等待期间不持有剧本锁；恢复后用代数判断响应是否已过期，
// 过期响应整体丢弃，绝不覆盖等待期间提交的变更。

// RefreshScenes 刷新场景集合
func (s *ScreenplayService) RefreshScenes(ctx context.Context, screenplayID string) ([]models.Scene, models.ReconcileDiagnostics, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)

	lock.RLock()
	startGen := state.generation
	lock.RUnlock()

	remoteScenes, err := s.remote.ListScenes(ctx, screenplayID)
	if err != nil {
		return nil, models.ReconcileDiagnostics{}, apperrors.NewRemoteError("拉取场景快照失败", err)
	}

	lock.Lock()
	defer lock.Unlock()

	if state.generation != startGen {
		// 等待期间有变更提交，快照已过期
		s.logger.Debugf("丢弃过期的场景快照 %s (代数 %d -> %d)", screenplayID, startGen, state.generation)
		return cloneScenes(state.scenes), models.ReconcileDiagnostics{}, nil
	}

	merged, diag := s.reconcile.MergeScenes(screenplayID, remoteScenes, state.scenes, time.Now())
	state.scenes = DedupAndRenumberScenes(merged)
	s.commitLocked(screenplayID, state, true)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "scene", Action: "refreshed"})

	return cloneScenes(state.scenes), diag, nil
}

// RefreshCharacters 刷新角色集合
func (s *ScreenplayService) RefreshCharacters(ctx context.Context, screenplayID string) ([]models.Character, models.ReconcileDiagnostics, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)

	lock.RLock()
	startGen := state.generation
	lock.RUnlock()

	remoteCharacters, err := s.remote.ListCharacters(ctx, screenplayID)
	if err != nil {
		return nil, models.ReconcileDiagnostics{}, apperrors.NewRemoteError("拉取角色快照失败", err)
	}

	lock.Lock()
	defer lock.Unlock()

	if state.generation != startGen {
		s.logger.Debugf("丢弃过期的角色快照 %s (代数 %d -> %d)", screenplayID, startGen, state.generation)
		return cloneCharacters(state.characters), models.ReconcileDiagnostics{}, nil
	}

	merged, diag := s.reconcile.MergeCharacters(screenplayID, remoteCharacters, state.characters, time.Now())
	state.characters = merged
	s.commitLocked(screenplayID, state, false)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "character", Action: "refreshed"})

	return cloneCharacters(state.characters), diag, nil
}

// RefreshLocations 刷新场地集合
func (s *ScreenplayService) RefreshLocations(ctx context.Context, screenplayID string) ([]models.Location, models.ReconcileDiagnostics, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)

	lock.RLock()
	startGen := state.generation
	lock.RUnlock()

	remoteLocations, err := s.remote.ListLocations(ctx, screenplayID)
	if err != nil {
		return nil, models.ReconcileDiagnostics{}, apperrors.NewRemoteError("拉取场地快照失败", err)
	}

	lock.Lock()
	defer lock.Unlock()

	if state.generation != startGen {
		s.logger.Debugf("丢弃过期的场地快照 %s (代数 %d -> %d)", screenplayID, startGen, state.generation)
		return cloneLocations(state.locations), models.ReconcileDiagnostics{}, nil
	}

	merged, diag := s.reconcile.MergeLocations(screenplayID, remoteLocations, state.locations, time.Now())
	state.locations = merged
	s.commitLocked(screenplayID, state, false)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "location", Action: "refreshed"})

	return cloneLocations(state.locations), diag, nil
}

// RefreshProps 刷新道具集合
func (s *ScreenplayService) RefreshProps(ctx context.Context, screenplayID string) ([]models.Prop, models.ReconcileDiagnostics, error) {
	state := s.ensureState(screenplayID)
	lock := s.locks.GetScreenplayLock(screenplayID)

	lock.RLock()
	startGen := state.generation
	lock.RUnlock()

	remoteProps, err := s.remote.ListProps(ctx, screenplayID)
	if err != nil {
		return nil, models.ReconcileDiagnostics{}, apperrors.NewRemoteError("拉取道具快照失败", err)
	}

	lock.Lock()
	defer lock.Unlock()

	if state.generation != startGen {
		s.logger.Debugf("丢弃过期的道具快照 %s (代数 %d -> %d)", screenplayID, startGen, state.generation)
		return cloneProps(state.props), models.ReconcileDiagnostics{}, nil
	}

	merged, diag := s.reconcile.MergeProps(screenplayID, remoteProps, state.props, time.Now())
	state.props = merged
	s.commitLocked(screenplayID, state, false)
	s.notify(StoreEvent{ScreenplayID: screenplayID, Kind: "prop", Action: "refreshed"})

	return cloneProps(state.props), diag, nil
}

// RefreshAll 依次刷新四个集合，返回第一个遇到的错误
func (s *ScreenplayService) RefreshAll(ctx context.Context, screenplayID string) error {
	if _, _, err := s.RefreshCharacters(ctx, screenplayID); err != nil {
		return err
	}
	if _, _, err := s.RefreshLocations(ctx, screenplayID); err != nil {
		return err
	}
	if _, _, err := s.RefreshProps(ctx, screenplayID); err != nil {
		return err
	}
	if _, _, err := s.RefreshScenes(ctx, screenplayID); err != nil {
		return err
	}
	return nil
}

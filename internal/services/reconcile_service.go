// internal/services/reconcile_service.go
package services

import (
	"time"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
	"github.com/Corphon/ScriptDeskMCP/internal/utils"
)

// ReconcilePolicy 合并策略常量
type ReconcilePolicy struct {
	// FreshnessWindow 新鲜度窗口：仅存在于本地、且在窗口内创建/更新的实体
	// 视为远端读滞后而保留；窗口外的本地孤儿视为已被远端删除
	FreshnessWindow time.Duration
	// TieBreakThreshold 时间戳比较阈值：本地时间戳超出远端该阈值以上才优先本地
	TieBreakThreshold time.Duration
}

// DefaultReconcilePolicy 沿用来源的策略默认值
func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{
		FreshnessWindow:   5 * time.Minute,
		TieBreakThreshold: 1 * time.Second,
	}
}

// ReconcileService 将远端快照与本地乐观集合合并为可安全展示的集合
// 远端是事实来源但可能滞后；本地包含未确认的乐观编辑。
// 合并对输入完全容错：缺失/异常时间戳按零值处理（永远输掉比较），不会抛错。
type ReconcileService struct {
	policy  ReconcilePolicy
	pending *storage.PendingLog
	logger  *utils.Logger
}

// NewReconcileService 创建合并服务
func NewReconcileService(policy ReconcilePolicy, pending *storage.PendingLog) *ReconcileService {
	if policy.FreshnessWindow <= 0 {
		policy.FreshnessWindow = DefaultReconcilePolicy().FreshnessWindow
	}
	if policy.TieBreakThreshold <= 0 {
		policy.TieBreakThreshold = DefaultReconcilePolicy().TieBreakThreshold
	}

	return &ReconcileService{
		policy:  policy,
		pending: pending,
		logger:  utils.GetLogger(),
	}
}

// Policy 返回当前策略
func (s *ReconcileService) Policy() ReconcilePolicy {
	return s.policy
}

// entityView 合并所需的按类型访问器
type entityView[T any] struct {
	id      func(*T) string
	touched func(*T) time.Time
	signals func(*T) int
}

// mergeCollections 按实体id合并远端与本地集合
//
// 规则（对出现在任一集合中的每个id）：
//   - 仅远端：采用远端版本
//   - 仅本地：有效时间戳在新鲜度窗口内则保留（读后写滞后保护），否则丢弃
//   - 两边都有：本地时间戳超出远端一个阈值以上则取本地，
//     阈值内平局时附属资源（图片数）严格更多的一方胜出，否则取远端
//   - 墓碑集合中的id无条件排除
//
// 输出顺序：远端顺序在前，窗口内的本地新增按本地顺序追加。
func mergeCollections[T any](remote, local []T, view entityView[T], tombstones map[string]bool,
	now time.Time, policy ReconcilePolicy, diag *models.ReconcileDiagnostics) []T {

	localByID := make(map[string]*T, len(local))
	for i := range local {
		localByID[view.id(&local[i])] = &local[i]
	}

	merged := make([]T, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))

	for i := range remote {
		id := view.id(&remote[i])
		seen[id] = true

		if tombstones[id] {
			diag.DroppedTombstoned++
			continue
		}

		lv, exists := localByID[id]
		if !exists {
			merged = append(merged, remote[i])
			continue
		}

		lt := view.touched(lv)
		rt := view.touched(&remote[i])

		switch {
		case lt.Sub(rt) > policy.TieBreakThreshold:
			// 已确认但远端尚未反映的本地编辑
			merged = append(merged, *lv)
		case absDuration(lt.Sub(rt)) <= policy.TieBreakThreshold && view.signals(lv) > view.signals(&remote[i]):
			// 平局：附属资源严格更多的版本不可能是回退
			merged = append(merged, *lv)
		default:
			merged = append(merged, remote[i])
		}
	}

	// 仅本地的条目：窗口内保留，窗口外视为已被远端删除/取代
	for i := range local {
		id := view.id(&local[i])
		if seen[id] {
			continue
		}
		if tombstones[id] {
			diag.DroppedTombstoned++
			continue
		}

		if now.Sub(view.touched(&local[i])) <= policy.FreshnessWindow {
			merged = append(merged, local[i])
		} else {
			diag.DroppedStaleLocal++
		}
	}

	return merged
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// MergeScenes 合并场景集合
func (s *ReconcileService) MergeScenes(screenplayID string, remote, local []models.Scene, now time.Time) ([]models.Scene, models.ReconcileDiagnostics) {
	var diag models.ReconcileDiagnostics

	view := entityView[models.Scene]{
		id:      func(e *models.Scene) string { return e.ID },
		touched: func(e *models.Scene) time.Time { return e.Touched() },
		signals: func(e *models.Scene) int { return len(e.Images) },
	}

	merged := mergeCollections(remote, local, view, s.tombstones(screenplayID, storage.KindScene), now, s.policy, &diag)
	s.report(screenplayID, "scenes", diag)
	return merged, diag
}

// MergeCharacters 合并角色集合
func (s *ReconcileService) MergeCharacters(screenplayID string, remote, local []models.Character, now time.Time) ([]models.Character, models.ReconcileDiagnostics) {
	var diag models.ReconcileDiagnostics

	view := entityView[models.Character]{
		id:      func(e *models.Character) string { return e.ID },
		touched: func(e *models.Character) time.Time { return e.Touched() },
		signals: func(e *models.Character) int { return len(e.Images) },
	}

	merged := mergeCollections(remote, local, view, s.tombstones(screenplayID, storage.KindCharacter), now, s.policy, &diag)
	s.report(screenplayID, "characters", diag)
	return merged, diag
}

// MergeLocations 合并场地集合
func (s *ReconcileService) MergeLocations(screenplayID string, remote, local []models.Location, now time.Time) ([]models.Location, models.ReconcileDiagnostics) {
	var diag models.ReconcileDiagnostics

	view := entityView[models.Location]{
		id:      func(e *models.Location) string { return e.ID },
		touched: func(e *models.Location) time.Time { return e.Touched() },
		signals: func(e *models.Location) int { return len(e.Images) },
	}

	merged := mergeCollections(remote, local, view, s.tombstones(screenplayID, storage.KindLocation), now, s.policy, &diag)
	s.report(screenplayID, "locations", diag)
	return merged, diag
}

// MergeProps 合并道具集合
func (s *ReconcileService) MergeProps(screenplayID string, remote, local []models.Prop, now time.Time) ([]models.Prop, models.ReconcileDiagnostics) {
	var diag models.ReconcileDiagnostics

	view := entityView[models.Prop]{
		id:      func(e *models.Prop) string { return e.ID },
		touched: func(e *models.Prop) time.Time { return e.Touched() },
		signals: func(e *models.Prop) int { return len(e.Images) },
	}

	merged := mergeCollections(remote, local, view, s.tombstones(screenplayID, storage.KindProp), now, s.policy, &diag)
	s.report(screenplayID, "props", diag)
	return merged, diag
}

// tombstones 获取窗口内的近期删除id集合（窗口外的墓碑已被日志修剪）
func (s *ReconcileService) tombstones(screenplayID string, kind storage.EntityKind) map[string]bool {
	if s.pending == nil {
		return nil
	}
	return s.pending.DeletedIDs(screenplayID, kind)
}

func (s *ReconcileService) report(screenplayID, collection string, diag models.ReconcileDiagnostics) {
	if diag.DroppedStaleLocal == 0 && diag.DroppedTombstoned == 0 {
		return
	}
	s.logger.Debugf("合并 %s/%s: 丢弃过期本地条目 %d 个, 墓碑排除 %d 个",
		screenplayID, collection, diag.DroppedStaleLocal, diag.DroppedTombstoned)
}

// internal/services/reconcile_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
)

func newTestReconcile(t *testing.T) (*ReconcileService, *storage.PendingLog) {
	t.Helper()
	pending, err := storage.NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)
	return NewReconcileService(DefaultReconcilePolicy(), pending), pending
}

func sceneAt(id string, updatedAt time.Time, imageCount int) models.Scene {
	images := make([]models.ImageRef, imageCount)
	return models.Scene{ID: id, Heading: "INT. " + id + " - DAY", UpdatedAt: updatedAt, Images: images}
}

func TestMergeScenes_EmptyLocalTakesRemote(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Scene{sceneAt("a", now, 0), sceneAt("b", now, 0)}
	merged, diag := svc.MergeScenes("sp", remote, nil, now)

	assert.Len(t, merged, 2)
	assert.Zero(t, diag.DroppedStaleLocal)
}

func TestMergeScenes_NewerLocalWins(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Scene{sceneAt("a", now.Add(-10*time.Second), 0)}
	local := []models.Scene{sceneAt("a", now, 0)}
	local[0].Synopsis = "本地编辑"

	merged, _ := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Equal(t, "本地编辑", merged[0].Synopsis)
}

func TestMergeScenes_OlderLocalLoses(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Scene{sceneAt("a", now, 0)}
	remote[0].Synopsis = "远端版本"
	local := []models.Scene{sceneAt("a", now.Add(-10*time.Second), 0)}

	merged, _ := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Equal(t, "远端版本", merged[0].Synopsis)
}

func TestMergeScenes_TieBreakBySignalCount(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	// 时间戳相同：图片更多的本地版本不可能是回退
	remote := []models.Scene{sceneAt("a", now, 1)}
	local := []models.Scene{sceneAt("a", now, 2)}

	merged, _ := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Len(t, merged[0].Images, 2)
}

func TestMergeScenes_TieWithEqualSignalsTakesRemote(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Scene{sceneAt("a", now, 1)}
	remote[0].Synopsis = "远端"
	local := []models.Scene{sceneAt("a", now, 1)}
	local[0].Synopsis = "本地"

	merged, _ := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Equal(t, "远端", merged[0].Synopsis)
}

func TestMergeScenes_LocalOnlyWithinWindowKept(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	// 1分钟前创建、远端尚未返回 -> 读滞后，保留
	local := []models.Scene{sceneAt("fresh", now.Add(-time.Minute), 0)}

	merged, diag := svc.MergeScenes("sp", nil, local, now)

	assert.Len(t, merged, 1)
	assert.Zero(t, diag.DroppedStaleLocal)
}

func TestMergeScenes_LocalOnlyBeyondWindowDropped(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	// 10分钟前创建仍不在远端 -> 视为已被远端删除
	local := []models.Scene{sceneAt("stale", now.Add(-10*time.Minute), 0)}

	merged, diag := svc.MergeScenes("sp", nil, local, now)

	assert.Empty(t, merged)
	assert.Equal(t, 1, diag.DroppedStaleLocal)
}

func TestMergeScenes_ZeroTimestampAlwaysLoses(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Scene{sceneAt("a", now.Add(-time.Hour), 0)}
	remote[0].Synopsis = "远端"
	local := []models.Scene{{ID: "a", Synopsis: "无时间戳"}}

	merged, _ := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Equal(t, "远端", merged[0].Synopsis)

	// 仅本地且无时间戳：不在窗口内，丢弃
	merged, diag := svc.MergeScenes("sp", nil, []models.Scene{{ID: "b"}}, now)
	assert.Empty(t, merged)
	assert.Equal(t, 1, diag.DroppedStaleLocal)
}

func TestMergeScenes_TombstoneExcludesBothSides(t *testing.T) {
	svc, pending := newTestReconcile(t)
	now := time.Now()

	require.NoError(t, pending.RecordDelete("sp", storage.KindScene, "dead"))

	remote := []models.Scene{sceneAt("dead", now, 0), sceneAt("alive", now, 0)}
	local := []models.Scene{sceneAt("dead", now, 0)}

	merged, diag := svc.MergeScenes("sp", remote, local, now)

	require.Len(t, merged, 1)
	assert.Equal(t, "alive", merged[0].ID)
	assert.Equal(t, 1, diag.DroppedTombstoned)
}

func TestMergeCharacters_RemoteOrderPreserved(t *testing.T) {
	svc, _ := newTestReconcile(t)
	now := time.Now()

	remote := []models.Character{
		{ID: "c1", Name: "SARAH", UpdatedAt: now},
		{ID: "c2", Name: "RIVERA", UpdatedAt: now},
	}
	local := []models.Character{
		{ID: "c3", Name: "MARCUS", UpdatedAt: now.Add(-time.Minute)},
	}

	merged, _ := svc.MergeCharacters("sp", remote, local, now)

	require.Len(t, merged, 3)
	// 远端顺序在前，窗口内本地新增追加在后
	assert.Equal(t, "c1", merged[0].ID)
	assert.Equal(t, "c2", merged[1].ID)
	assert.Equal(t, "c3", merged[2].ID)
}

func TestNewReconcileService_DefaultsOnInvalidPolicy(t *testing.T) {
	svc := NewReconcileService(ReconcilePolicy{}, nil)
	assert.Equal(t, 5*time.Minute, svc.Policy().FreshnessWindow)
	assert.Equal(t, time.Second, svc.Policy().TieBreakThreshold)
}

// internal/services/screenplay_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/remote"
	"github.com/Corphon/ScriptDeskMCP/internal/storage"
)

func newTestStore(t *testing.T) (*ScreenplayService, *remote.MemoryStore) {
	t.Helper()

	memory := remote.NewMemoryStore()
	pending, err := storage.NewPendingLog(t.TempDir(), 5*time.Minute)
	require.NoError(t, err)

	store := NewScreenplayService(
		memory,
		NewReconcileService(DefaultReconcilePolicy(), pending),
		NewRelationshipService(),
		NewRescanService(),
		NewParserService(),
		pending,
	)
	return store, memory
}

func TestCreateScene_OptimisticConfirm(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.NoError(t, err)

	// 远端确认后临时id被规范id替换
	assert.NotEmpty(t, created.ID)
	assert.False(t, IsTempID(created.ID))

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)
	assert.Equal(t, created.ID, scenes[0].ID)
	assert.Equal(t, 0, scenes[0].Order)
	assert.Equal(t, 1, scenes[0].Number)
}

func TestCreateScene_RollbackOnRemoteFailure(t *testing.T) {
	store, memory := newTestStore(t)
	ctx := context.Background()

	memory.SetError(errors.New("网络中断"))

	_, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteError(err))

	// 乐观写入已回滚
	assert.Empty(t, store.Scenes("sp"))
}

func TestCreateScene_ValidationRejectsBlankHeading(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.CreateScene(context.Background(), "sp", models.Scene{Heading: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestUpdateScene_RollbackRestoresPriorVersion(t *testing.T) {
	store, memory := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY", Synopsis: "原始"})
	require.NoError(t, err)

	memory.SetError(errors.New("网络中断"))

	edited := *created
	edited.Synopsis = "改过"
	_, err = store.UpdateScene(ctx, "sp", edited)
	require.Error(t, err)

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)
	assert.Equal(t, "原始", scenes[0].Synopsis)
}

func TestDeleteScene_MissingReturnsStructuredFailure(t *testing.T) {
	store, _ := newTestStore(t)

	// 删除不存在的实体是结构化失败，不是错误
	result, err := store.DeleteScene(context.Background(), "sp", "ghost")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ghost")
}

func TestDeleteScene_RenumbersSurvivors(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. A - DAY", Fountain: models.FountainMeta{StartLine: 0}})
	require.NoError(t, err)
	_, err = store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. B - DAY", Fountain: models.FountainMeta{StartLine: 10}})
	require.NoError(t, err)

	result, err := store.DeleteScene(ctx, "sp", a.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)
	assert.Equal(t, 0, scenes[0].Order)
	assert.Equal(t, 1, scenes[0].Number)
}

func TestDeleteCharacter_GraphDropsReferences(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	character, err := store.CreateCharacter(ctx, "sp", models.Character{Name: "SARAH"})
	require.NoError(t, err)

	scene := models.Scene{Heading: "INT. KITCHEN - DAY"}
	scene.Fountain.Tags.CharacterIDs = []string{character.ID}
	created, err := store.CreateScene(ctx, "sp", scene)
	require.NoError(t, err)

	graph := store.Graph("sp")
	assert.Equal(t, []string{created.ID}, graph.Characters[character.ID].AppearsInScenes)

	result, err := store.DeleteCharacter(ctx, "sp", character.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// 角色删除后关联图不再包含它，场景侧的悬空引用被过滤
	graph = store.Graph("sp")
	assert.NotContains(t, graph.Characters, character.ID)
	assert.Empty(t, graph.Scenes[created.ID].CharacterIDs)
}

func TestRefreshScenes_MergesRemoteAndKeepsFreshLocal(t *testing.T) {
	store, memory := newTestStore(t)
	ctx := context.Background()

	// 远端先有一个场景
	_, err := memory.CreateScene(ctx, "sp", models.Scene{
		ID: "r1", Heading: "INT. OFFICE - DAY", UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	scenes, diag, err := store.RefreshScenes(ctx, "sp")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "r1", scenes[0].ID)
	assert.Zero(t, diag.DroppedStaleLocal)
}

func TestRefreshScenes_RemoteFailureLeavesStateUntouched(t *testing.T) {
	store, memory := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.NoError(t, err)

	memory.SetError(errors.New("网络中断"))

	_, _, err = store.RefreshScenes(ctx, "sp")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteError(err))

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)
	assert.Equal(t, created.ID, scenes[0].ID)
}

func TestRescanScript_EndToEnd(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := "INT. KITCHEN - DAY\n\n= 厨房的信。\n\nSARAH\n这是什么？\n\nEXT. HARBOR - NIGHT\n\nDETECTIVE RIVERA\n把东西给我。\n"
	result, err := store.RescanScript(ctx, "sp", first)
	require.NoError(t, err)

	assert.Len(t, result.Scenes, 2)
	assert.Zero(t, result.MatchedCount)
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, 2, result.NewCharacters)
	assert.Equal(t, 2, result.NewLocations)
	// 计数与去重后的最终场景列表自洽
	assert.Equal(t, len(result.Scenes), result.MatchedCount+result.NewCount)

	// 手工编辑：厨房场景进入 review
	scenes := store.Scenes("sp")
	kitchen := scenes[0]
	require.Equal(t, "INT. KITCHEN - DAY", kitchen.Heading)
	kitchen.Status = models.SceneStatusReview
	_, err = store.UpdateScene(ctx, "sp", kitchen)
	require.NoError(t, err)

	// 修订版：厨房改外景、码头场景保留、RIVERA 简写应并入已有角色
	second := "EXT. KITCHEN - DAY\n\n= 厨房的信。\n\nSARAH\n这是什么？\n\nRIVERA\n计划有变。\n\nEXT. HARBOR - NIGHT\n\nDETECTIVE RIVERA\n把东西给我。\n"
	result, err = store.RescanScript(ctx, "sp", second)
	require.NoError(t, err)

	assert.Equal(t, 2, result.MatchedCount)
	assert.Zero(t, result.NewCount)
	assert.Equal(t, len(result.Scenes), result.MatchedCount+result.NewCount)
	assert.Zero(t, result.NewCharacters)

	scenes = store.Scenes("sp")
	require.Len(t, scenes, 2)

	// 标题从 INT 改为 EXT 后 review 状态仍在
	assert.Equal(t, "EXT. KITCHEN - DAY", scenes[0].Heading)
	assert.Equal(t, models.SceneStatusReview, scenes[0].Status)

	// RIVERA 成为已有角色的别名，没有产生新角色
	characters := store.Characters("sp")
	require.Len(t, characters, 2)
	for _, c := range characters {
		if c.Name == "DETECTIVE RIVERA" {
			assert.Contains(t, c.Aliases, "RIVERA")
		}
	}
}

func TestRescanScript_UnmatchedSceneGetsFallbackSynopsis(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	result, err := store.RescanScript(ctx, "sp", "INT. WAREHOUSE - NIGHT\n\nMARCUS\n计划有变。\n")
	require.NoError(t, err)

	require.Len(t, result.Scenes, 1)
	assert.Equal(t, "（待补充概要）", result.Scenes[0].Synopsis)
	assert.Equal(t, models.SceneStatusDraft, result.Scenes[0].Status)
}

func TestRescanScript_TagsResolvedFromImports(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.RescanScript(ctx, "sp", "INT. KITCHEN - DAY\n\nSARAH\n你好。\n")
	require.NoError(t, err)

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)

	characters := store.Characters("sp")
	require.Len(t, characters, 1)
	locations := store.Locations("sp")
	require.Len(t, locations, 1)
	assert.Equal(t, models.LocationTypeInt, locations[0].Type)

	assert.Equal(t, []string{characters[0].ID}, scenes[0].Fountain.Tags.CharacterIDs)
	assert.Equal(t, locations[0].ID, scenes[0].Fountain.Tags.LocationID)

	// 派生关联图双向一致
	sceneCharacters := store.GetSceneCharacters("sp", scenes[0].ID)
	require.Len(t, sceneCharacters, 1)
	assert.Equal(t, "SARAH", sceneCharacters[0].Name)

	location := store.GetSceneLocation("sp", scenes[0].ID)
	require.NotNil(t, location)
	assert.Equal(t, "KITCHEN", location.Name)
}

func TestRescanScript_ValidationRejectsEmptyText(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.RescanScript(context.Background(), "sp", "  \n ")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestLinkPropToScenes_AtomicAssociation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	scene, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.NoError(t, err)
	prop, err := store.CreateProp(ctx, "sp", models.Prop{Name: "神秘的信"})
	require.NoError(t, err)

	scenes, err := store.LinkPropToScenes(ctx, "sp", prop.ID, []string{scene.ID}, nil)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Contains(t, scenes[0].Fountain.Tags.PropIDs, prop.ID)

	propScenes := store.GetPropScenes("sp", prop.ID)
	require.Len(t, propScenes, 1)

	// 解除关联
	_, err = store.LinkPropToScenes(ctx, "sp", prop.ID, nil, []string{scene.ID})
	require.NoError(t, err)
	assert.Empty(t, store.GetPropScenes("sp", prop.ID))
}

func TestLinkPropToScenes_UnknownTargetsRejected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.LinkPropToScenes(ctx, "sp", "ghost-prop", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))

	prop, err := store.CreateProp(ctx, "sp", models.Prop{Name: "刀"})
	require.NoError(t, err)

	_, err = store.LinkPropToScenes(ctx, "sp", prop.ID, []string{"ghost-scene"}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestDeleteProp_ScrubsSceneTags(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	scene, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.NoError(t, err)
	prop, err := store.CreateProp(ctx, "sp", models.Prop{Name: "神秘的信"})
	require.NoError(t, err)

	_, err = store.LinkPropToScenes(ctx, "sp", prop.ID, []string{scene.ID}, nil)
	require.NoError(t, err)

	result, err := store.DeleteProp(ctx, "sp", prop.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	scenes := store.Scenes("sp")
	require.Len(t, scenes, 1)
	assert.Empty(t, scenes[0].Fountain.Tags.PropIDs)
}

func TestSubscribe_EventsDeliveredOnCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var events []StoreEvent
	store.Subscribe(func(event StoreEvent) {
		events = append(events, event)
	})

	created, err := store.CreateScene(ctx, "sp", models.Scene{Heading: "INT. KITCHEN - DAY"})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "sp", events[0].ScreenplayID)
	assert.Equal(t, "scene", events[0].Kind)
	assert.Equal(t, "created", events[0].Action)
	assert.Equal(t, created.ID, events[0].EntityID)
}

func TestScreenplaysAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateScene(ctx, "sp1", models.Scene{Heading: "INT. A - DAY"})
	require.NoError(t, err)

	assert.Len(t, store.Scenes("sp1"), 1)
	assert.Empty(t, store.Scenes("sp2"))
}

// internal/services/rescan_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

func oldScene(id, heading string, startLine int) models.Scene {
	return models.Scene{
		ID:      id,
		Heading: heading,
		Fountain: models.FountainMeta{
			StartLine: startLine,
		},
	}
}

func TestMatchScenes_ExactHeadingAndLine(t *testing.T) {
	svc := NewRescanService()

	old := []models.Scene{oldScene("a", "INT. KITCHEN - DAY", 10)}
	parsed := []models.ParsedScene{{Heading: "INT. KITCHEN - DAY", StartLine: 12}}

	matched := svc.MatchScenes(old, parsed)

	require.Contains(t, matched, 0)
	assert.Equal(t, "a", matched[0].ID)
}

func TestMatchScenes_IntExtChangeMatchesByLocation(t *testing.T) {
	svc := NewRescanService()

	// 标题从 INT 改成 EXT，位置没动：按场地名匹配，元数据不丢
	old := []models.Scene{oldScene("a", "INT. KITCHEN - DAY", 10)}
	parsed := []models.ParsedScene{{Heading: "EXT. KITCHEN - DAY", StartLine: 10, LocationName: "KITCHEN"}}

	matched := svc.MatchScenes(old, parsed)

	require.Contains(t, matched, 0)
	assert.Equal(t, "a", matched[0].ID)
}

func TestMatchScenes_HeadingOnlyFallbackIgnoresDistance(t *testing.T) {
	svc := NewRescanService()

	// 场景移动了100行：前两级策略失败，兜底策略只看标题
	old := []models.Scene{oldScene("a", "INT. KITCHEN - DAY", 10)}
	parsed := []models.ParsedScene{{Heading: "INT. KITCHEN - DAY", StartLine: 110}}

	matched := svc.MatchScenes(old, parsed)
	require.Contains(t, matched, 0)
}

func TestMatchScenes_DriftBeyondLimitNotMatchedByLine(t *testing.T) {
	svc := NewRescanService()

	// 标题不同且漂移超过5行：不匹配
	old := []models.Scene{oldScene("a", "INT. KITCHEN - DAY", 10)}
	parsed := []models.ParsedScene{{Heading: "INT. GARAGE - DAY", StartLine: 30, LocationName: "GARAGE"}}

	matched := svc.MatchScenes(old, parsed)
	assert.Empty(t, matched)
}

func TestMatchScenes_OldSceneDonatesOnce(t *testing.T) {
	svc := NewRescanService()

	old := []models.Scene{oldScene("a", "INT. KITCHEN - DAY", 10)}
	parsed := []models.ParsedScene{
		{Heading: "INT. KITCHEN - DAY", StartLine: 10},
		{Heading: "INT. KITCHEN - DAY", StartLine: 80},
	}

	matched := svc.MatchScenes(old, parsed)

	// 行距更近的新场景拿到旧场景，另一个落空
	require.Len(t, matched, 1)
	assert.Contains(t, matched, 0)
}

func TestMatchScenes_StrongerStrategyClaimsContestedScene(t *testing.T) {
	svc := NewRescanService()

	// 同一个旧场景被两个新场景争夺：前文的只能兜底匹配（漂移95行），
	// 后文的标题和位置都对得上。精确匹配先认领，不受新场景顺序影响。
	old := []models.Scene{oldScene("o", "INT. KITCHEN - DAY", 100)}
	parsed := []models.ParsedScene{
		{Heading: "INT. KITCHEN - DAY", StartLine: 5},
		{Heading: "INT. KITCHEN - DAY", StartLine: 102},
	}

	matched := svc.MatchScenes(old, parsed)

	require.Len(t, matched, 1)
	require.Contains(t, matched, 1)
	assert.Equal(t, "o", matched[1].ID)
}

func TestMatchScenes_ClosestCandidateWins(t *testing.T) {
	svc := NewRescanService()

	old := []models.Scene{
		oldScene("far", "INT. KITCHEN - DAY", 15),
		oldScene("near", "INT. KITCHEN - DAY", 11),
	}
	parsed := []models.ParsedScene{{Heading: "INT. KITCHEN - DAY", StartLine: 10}}

	matched := svc.MatchScenes(old, parsed)

	require.Contains(t, matched, 0)
	assert.Equal(t, "near", matched[0].ID)
}

func TestCarryMetadata_PreservesUserFields(t *testing.T) {
	svc := NewRescanService()

	old := &models.Scene{
		ID:             "a",
		Heading:        "INT. KITCHEN - DAY",
		Synopsis:       "旧概要",
		Status:         models.SceneStatusReview,
		Images:         []models.ImageRef{{Key: "img1"}},
		TimingMinutes:  2.5,
		EstimatedPages: 1.2,
		GroupLabel:     "第一幕",
		CreatedAt:      time.Now().Add(-time.Hour),
		Fountain: models.FountainMeta{
			StartLine: 10,
			Tags:      models.SceneTags{PropIDs: []string{"p1"}},
		},
	}
	parsed := &models.ParsedScene{Heading: "EXT. KITCHEN - DAY", StartLine: 12, EndLine: 20}

	scene := svc.CarryMetadata(parsed, old)

	// 文本层信息取新解析值
	assert.Equal(t, "EXT. KITCHEN - DAY", scene.Heading)
	assert.Equal(t, 12, scene.Fountain.StartLine)
	assert.Equal(t, 20, scene.Fountain.EndLine)

	// 用户元数据随匹配结转
	assert.Equal(t, "a", scene.ID)
	assert.Equal(t, "旧概要", scene.Synopsis)
	assert.Equal(t, models.SceneStatusReview, scene.Status)
	assert.Len(t, scene.Images, 1)
	assert.Equal(t, 2.5, scene.TimingMinutes)
	assert.Equal(t, 1.2, scene.EstimatedPages)
	assert.Equal(t, "第一幕", scene.GroupLabel)
	assert.Equal(t, []string{"p1"}, scene.Fountain.Tags.PropIDs)
}

func TestCarryMetadata_NewSynopsisTakesPrecedence(t *testing.T) {
	svc := NewRescanService()

	old := &models.Scene{ID: "a", Synopsis: "旧概要"}
	parsed := &models.ParsedScene{Heading: "INT. A - DAY", Synopsis: "新概要"}

	scene := svc.CarryMetadata(parsed, old)
	assert.Equal(t, "新概要", scene.Synopsis)
}

func TestCarryMetadata_UnmatchedGetsDraftAndFallbackSynopsis(t *testing.T) {
	svc := NewRescanService()

	scene := svc.CarryMetadata(&models.ParsedScene{Heading: "INT. NEW - DAY"}, nil)

	assert.Equal(t, models.SceneStatusDraft, scene.Status)
	assert.Equal(t, "（待补充概要）", scene.Synopsis)
	assert.Empty(t, scene.ID)
}

func TestNamesSimilar(t *testing.T) {
	// 词边界子串匹配
	assert.True(t, NamesSimilar("RIVERA", "DETECTIVE RIVERA"))
	assert.True(t, NamesSimilar("DETECTIVE RIVERA", "rivera"))
	assert.True(t, NamesSimilar("SARAH", "sarah"))

	// 较短一方不足3字符
	assert.False(t, NamesSimilar("A", "SARAH"))
	assert.False(t, NamesSimilar("SA", "SARAH"))

	// 子串出现但不在词边界上
	assert.False(t, NamesSimilar("ERA", "RIVERA"))
	assert.False(t, NamesSimilar("RIV", "RIVERA"))

	assert.False(t, NamesSimilar("", "SARAH"))
	assert.False(t, NamesSimilar("SARAH", "MARCUS"))
}

func TestRescanService_SingleFlight(t *testing.T) {
	svc := NewRescanService()

	require.NoError(t, svc.Begin("sp"))
	assert.True(t, svc.InProgress("sp"))

	err := svc.Begin("sp")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))

	// 其他剧本不受影响
	require.NoError(t, svc.Begin("other"))
	svc.End("other")

	svc.End("sp")
	assert.False(t, svc.InProgress("sp"))
	require.NoError(t, svc.Begin("sp"))
	svc.End("sp")
}

// internal/services/relationship_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

func taggedScene(id string, characterIDs []string, locationID string) models.Scene {
	return models.Scene{
		ID:      id,
		Heading: "INT. " + id + " - DAY",
		Fountain: models.FountainMeta{
			Tags: models.SceneTags{
				CharacterIDs: characterIDs,
				LocationID:   locationID,
			},
		},
	}
}

func TestBuildRelationshipGraph_ReferentialIntegrity(t *testing.T) {
	scenes := []models.Scene{
		taggedScene("s1", []string{"c1", "ghost"}, "l1"),
		taggedScene("s2", []string{"c1"}, "missing"),
	}
	characters := []models.Character{{ID: "c1", Name: "SARAH"}}
	locations := []models.Location{{ID: "l1", Name: "KITCHEN"}}

	graph, diag := BuildRelationshipGraph(scenes, characters, locations)

	// 悬空引用被静默过滤并计数
	assert.Equal(t, 1, diag.DroppedCharacterRefs)
	assert.Equal(t, 1, diag.DroppedLocationRefs)

	assert.Equal(t, []string{"c1"}, graph.Scenes["s1"].CharacterIDs)
	assert.Equal(t, "l1", graph.Scenes["s1"].LocationID)
	assert.Empty(t, graph.Scenes["s2"].LocationID)

	// 反向索引
	assert.ElementsMatch(t, []string{"s1", "s2"}, graph.Characters["c1"].AppearsInScenes)
	assert.Equal(t, []string{"s1"}, graph.Locations["l1"].Scenes)
}

func TestBuildRelationshipGraph_UnreferencedEntitiesGetEmptyEntries(t *testing.T) {
	characters := []models.Character{{ID: "lonely", Name: "MARCUS"}}
	locations := []models.Location{{ID: "unused", Name: "ATTIC"}}

	graph, _ := BuildRelationshipGraph(nil, characters, locations)

	require.Contains(t, graph.Characters, "lonely")
	assert.Empty(t, graph.Characters["lonely"].AppearsInScenes)
	require.Contains(t, graph.Locations, "unused")
	assert.Empty(t, graph.Locations["unused"].Scenes)
}

func TestBuildRelationshipGraph_DuplicateTagsDeduplicated(t *testing.T) {
	scenes := []models.Scene{
		taggedScene("s1", []string{"c1", "c1", "c1"}, ""),
	}
	characters := []models.Character{{ID: "c1", Name: "SARAH"}}

	graph, _ := BuildRelationshipGraph(scenes, characters, nil)

	assert.Equal(t, []string{"c1"}, graph.Scenes["s1"].CharacterIDs)
	assert.Equal(t, []string{"s1"}, graph.Characters["c1"].AppearsInScenes)
}

func TestRelationshipService_ShortCircuitOnSameMembership(t *testing.T) {
	svc := NewRelationshipService()

	scenes := []models.Scene{taggedScene("s1", []string{"c1"}, "")}
	characters := []models.Character{{ID: "c1", Name: "SARAH"}}

	graph1, rebuilt := svc.Rebuild("sp", scenes, characters, nil)
	assert.True(t, rebuilt)

	// 成员未变：必须短路并返回同一个图实例
	graph2, rebuilt := svc.Rebuild("sp", scenes, characters, nil)
	assert.False(t, rebuilt)
	assert.Same(t, graph1, graph2)

	// 成员变化：重建
	scenes = append(scenes, taggedScene("s2", nil, ""))
	_, rebuilt = svc.Rebuild("sp", scenes, characters, nil)
	assert.True(t, rebuilt)
}

func TestRelationshipService_InvalidateForcesRebuild(t *testing.T) {
	svc := NewRelationshipService()

	scenes := []models.Scene{taggedScene("s1", []string{"c1"}, "")}
	characters := []models.Character{{ID: "c1", Name: "SARAH"}}

	svc.Rebuild("sp", scenes, characters, nil)

	// 标签内容变了但成员没变：签名短路会漏掉，需要显式失效
	scenes[0].Fountain.Tags.CharacterIDs = nil
	svc.Invalidate("sp")

	graph, rebuilt := svc.Rebuild("sp", scenes, characters, nil)
	assert.True(t, rebuilt)
	assert.Empty(t, graph.Scenes["s1"].CharacterIDs)
}

func TestRelationshipService_GraphsIsolatedPerScreenplay(t *testing.T) {
	svc := NewRelationshipService()

	svc.Rebuild("sp1", []models.Scene{taggedScene("s1", nil, "")}, nil, nil)

	assert.NotNil(t, svc.Graph("sp1"))
	assert.Nil(t, svc.Graph("sp2"))
}

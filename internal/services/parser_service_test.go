// internal/services/parser_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

const sampleScript = `# 第一幕

INT. KITCHEN - DAY

= 莎拉发现桌上的信。

SARAH
这是什么？

MARCUS
(紧张)
别碰它。

EXT. HARBOR - NIGHT

DETECTIVE RIVERA
把东西给我。

SARAH
你先放了他。

# 第二幕

INT/EXT. CAR - MOVING - NIGHT

MARCUS
开快点。
`

func TestParse_SceneBoundaries(t *testing.T) {
	svc := NewParserService()

	result := svc.Parse(sampleScript)

	require.Len(t, result.Scenes, 3)
	assert.Equal(t, "INT. KITCHEN - DAY", result.Scenes[0].Heading)
	assert.Equal(t, "EXT. HARBOR - NIGHT", result.Scenes[1].Heading)
	assert.Equal(t, "INT/EXT. CAR - MOVING - NIGHT", result.Scenes[2].Heading)

	// 场景覆盖到下一个标题前一行
	assert.Less(t, result.Scenes[0].StartLine, result.Scenes[0].EndLine)
	assert.Less(t, result.Scenes[0].EndLine, result.Scenes[1].StartLine)
}

func TestParse_SynopsisAndSections(t *testing.T) {
	svc := NewParserService()

	result := svc.Parse(sampleScript)

	assert.Equal(t, "莎拉发现桌上的信。", result.Scenes[0].Synopsis)
	assert.Empty(t, result.Scenes[1].Synopsis)

	assert.Equal(t, "第一幕", result.Scenes[0].SectionLabel)
	assert.Equal(t, "第一幕", result.Scenes[1].SectionLabel)
	assert.Equal(t, "第二幕", result.Scenes[2].SectionLabel)
}

func TestParse_CharacterCues(t *testing.T) {
	svc := NewParserService()

	result := svc.Parse(sampleScript)

	assert.ElementsMatch(t, []string{"SARAH", "MARCUS"}, result.Scenes[0].CharacterNames)
	assert.ElementsMatch(t, []string{"DETECTIVE RIVERA", "SARAH"}, result.Scenes[1].CharacterNames)
	assert.ElementsMatch(t, []string{"DETECTIVE RIVERA", "MARCUS", "SARAH"}, result.CharacterNames)
}

func TestParse_LocationNames(t *testing.T) {
	svc := NewParserService()

	result := svc.Parse(sampleScript)

	assert.Contains(t, result.LocationNames, "KITCHEN")
	assert.Contains(t, result.LocationNames, "HARBOR")
	assert.Equal(t, "KITCHEN", result.Scenes[0].LocationName)
	assert.Equal(t, "HARBOR", result.Scenes[1].LocationName)
}

func TestParse_EmptyText(t *testing.T) {
	svc := NewParserService()

	result := svc.Parse("")

	assert.Empty(t, result.Scenes)
	assert.Empty(t, result.CharacterNames)
	assert.Empty(t, result.LocationNames)
}

func TestExtractLocationName(t *testing.T) {
	cases := map[string]string{
		"INT. KITCHEN - DAY":     "KITCHEN",
		"EXT. HARBOR - NIGHT":    "HARBOR",
		"ext. harbor - night":    "HARBOR",
		"I/E. CAR - LATER":       "CAR",
		"INT KITCHEN - DAY":      "KITCHEN",
		"INT. BASEMENT":          "BASEMENT",
		"随便写的一行":                 "随便写的一行",
		"":                       "",
		"INT. OFFICE - MORNING ": "OFFICE",
	}

	for heading, want := range cases {
		assert.Equal(t, want, ExtractLocationName(heading), "heading=%q", heading)
	}
}

func TestHeadingLocationType(t *testing.T) {
	assert.Equal(t, models.LocationTypeInt, headingLocationType("INT. KITCHEN - DAY"))
	assert.Equal(t, models.LocationTypeExt, headingLocationType("EXT. HARBOR - NIGHT"))
	assert.Equal(t, models.LocationTypeIntExt, headingLocationType("INT/EXT. CAR - NIGHT"))
	assert.Equal(t, models.LocationTypeIntExt, headingLocationType("I/E. CAR - NIGHT"))
	assert.Equal(t, models.LocationTypeInt, headingLocationType("不是场景标题"))
}

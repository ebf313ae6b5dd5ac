// internal/services/parser_service.go
package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

var (
	// 场景标题行：INT. / EXT. / INT/EXT. / I/E. 前缀
	sceneHeadingRe = regexp.MustCompile(`(?i)^\s*(INT/EXT|INT|EXT|I/E)[.\s]\s*(.+)$`)

	// 角色提示行：全大写，可带 (V.O.) / (O.S.) 等括注
	characterCueRe = regexp.MustCompile(`^\s*([A-Z][A-Z0-9 .'\-]{1,39})(\s*\(.*\))?\s*$`)

	// 概要行与段落标签行
	synopsisLineRe = regexp.MustCompile(`^\s*=\s*(.+)$`)
	sectionLineRe  = regexp.MustCompile(`^\s*#+\s*(.+)$`)

	// 标题尾部的时段后缀，如 " - DAY" / " - NIGHT" / " - LATER"
	timeOfDaySuffixRe = regexp.MustCompile(`(?i)\s*[-–]\s*[A-Z .']+$`)
)

// ParserService 确定性的剧本文本解析器
// 用正则从 fountain 风格文本中提取场景标题、角色提示、概要与段落标签，
// 产出 ParseResult 供重扫匹配器与批量导入消费。解析规则本身不做语义理解。
type ParserService struct{}

// NewParserService 创建解析服务
func NewParserService() *ParserService {
	return &ParserService{}
}

// ExtractLocationName 从场景标题中提取纯场地名
// 剥离 INT/EXT 前缀与尾部时段后缀："INT. KITCHEN - DAY" -> "KITCHEN"
func ExtractLocationName(heading string) string {
	trimmed := strings.TrimSpace(heading)

	if m := sceneHeadingRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[2])
		// "INT./EXT." 写法会在剥离后残留一个前缀
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
		if m2 := sceneHeadingRe.FindStringSubmatch(trimmed); m2 != nil {
			trimmed = strings.TrimSpace(m2[2])
		}
	}

	trimmed = timeOfDaySuffixRe.ReplaceAllString(trimmed, "")
	return strings.ToUpper(strings.TrimSpace(trimmed))
}

// headingLocationType 从标题前缀推断场地类型
func headingLocationType(heading string) models.LocationType {
	m := sceneHeadingRe.FindStringSubmatch(strings.TrimSpace(heading))
	if m == nil {
		return models.LocationTypeInt
	}
	switch strings.ToUpper(m[1]) {
	case "EXT":
		return models.LocationTypeExt
	case "INT/EXT", "I/E":
		return models.LocationTypeIntExt
	default:
		return models.LocationTypeInt
	}
}

// Parse 解析剧本文本
func (p *ParserService) Parse(text string) *models.ParseResult {
	lines := strings.Split(text, "\n")

	result := &models.ParseResult{
		Scenes:         []models.ParsedScene{},
		CharacterNames: []string{},
		LocationNames:  []string{},
	}

	charSet := make(map[string]bool)
	locSet := make(map[string]bool)

	var current *models.ParsedScene
	var currentSection string
	sceneCharSeen := make(map[string]bool)

	flush := func(endLine int) {
		if current == nil {
			return
		}
		current.EndLine = endLine
		result.Scenes = append(result.Scenes, *current)
		current = nil
	}

	for i, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")

		if m := sectionLineRe.FindStringSubmatch(line); m != nil {
			currentSection = strings.TrimSpace(m[1])
			continue
		}

		if sceneHeadingRe.MatchString(line) {
			flush(i - 1)

			heading := strings.TrimSpace(line)
			locationName := ExtractLocationName(heading)

			current = &models.ParsedScene{
				Heading:      heading,
				StartLine:    i,
				EndLine:      i,
				SectionLabel: currentSection,
				LocationName: locationName,
			}
			sceneCharSeen = make(map[string]bool)

			if locationName != "" && !locSet[locationName] {
				locSet[locationName] = true
				result.LocationNames = append(result.LocationNames, locationName)
			}
			continue
		}

		if current == nil {
			continue
		}

		if m := synopsisLineRe.FindStringSubmatch(line); m != nil {
			if current.Synopsis == "" {
				current.Synopsis = strings.TrimSpace(m[1])
			}
			continue
		}

		// 角色提示：全大写行且下一行是对白
		if m := characterCueRe.FindStringSubmatch(line); m != nil && i+1 < len(lines) &&
			strings.TrimSpace(lines[i+1]) != "" && !sceneHeadingRe.MatchString(lines[i+1]) {

			name := strings.TrimSpace(m[1])
			if name == strings.ToUpper(name) && len(name) >= 2 {
				if !sceneCharSeen[name] {
					sceneCharSeen[name] = true
					current.CharacterNames = append(current.CharacterNames, name)
				}
				if !charSet[name] {
					charSet[name] = true
					result.CharacterNames = append(result.CharacterNames, name)
				}
			}
		}
	}

	flush(len(lines) - 1)

	sort.Strings(result.CharacterNames)
	sort.Strings(result.LocationNames)

	return result
}

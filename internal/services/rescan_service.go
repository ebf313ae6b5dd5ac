// internal/services/rescan_service.go
package services

import (
	"strings"
	"sync"

	apperrors "github.com/Corphon/ScriptDeskMCP/internal/errors"
	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// maxStartLineDrift 位置匹配策略允许的起始行漂移
const maxStartLineDrift = 5

// 重扫匹配策略，按优先级排列
type matchStrategy int

const (
	matchByHeadingAndLine matchStrategy = iota // 标题相同且起始行接近
	matchByLocationAndLine                     // 场地名相同且起始行接近（容忍 INT/EXT 修正）
	matchByHeadingOnly                         // 仅标题相同（兜底）
)

// RescanService 重扫匹配器：将重新解析出的新场景匹配到旧场景，
// 以保留用户录入的元数据（概要、状态、图片、时长等）。
// 每个剧本同一时刻只允许一次重扫在途，第二个请求立即失败且无副作用。
type RescanService struct {
	inFlight sync.Map // screenplayID -> bool
}

// NewRescanService 创建重扫服务
func NewRescanService() *RescanService {
	return &RescanService{}
}

// Begin 获取重扫单飞标记，已有重扫在途时返回冲突错误
func (s *RescanService) Begin(screenplayID string) error {
	if _, loaded := s.inFlight.LoadOrStore(screenplayID, true); loaded {
		return apperrors.NewConflictError("该剧本已有重扫任务在进行中", nil)
	}
	return nil
}

// End 释放重扫单飞标记
func (s *RescanService) End(screenplayID string) {
	s.inFlight.Delete(screenplayID)
}

// InProgress 查询是否有重扫在途
func (s *RescanService) InProgress(screenplayID string) bool {
	_, loaded := s.inFlight.Load(screenplayID)
	return loaded
}

// MatchScenes 为每个新场景找到至多一个最佳匹配的旧场景
//
// 级联策略（先成者胜）：
//  1. 标题完全相同（忽略大小写与首尾空白）且起始行相差 ≤5 行
//  2. 提取的场地名相同且起始行相差 ≤5 行——标题从 INT 改为 EXT 时不丢元数据
//  3. 仅标题完全相同，不限位置（兜底）
//
// 级联按策略维度全局推进：先让所有新场景尝试策略1，再策略2、策略3。
// 高优先级策略的匹配因此总是先占住旧场景——一个旧场景被前文的兜底匹配
// 和后文的精确匹配同时争夺时，精确匹配胜出，元数据跟着更强的证据走。
//
// 同一策略下有多个候选时取行距最小者。旧场景一经匹配即从候选池移除，
// 不会把元数据捐给两个新场景。返回 新场景下标 -> 旧场景 的映射。
func (s *RescanService) MatchScenes(oldScenes []models.Scene, newScenes []models.ParsedScene) map[int]*models.Scene {
	matched := make(map[int]*models.Scene)
	taken := make(map[int]bool, len(oldScenes))

	for _, strategy := range []matchStrategy{matchByHeadingAndLine, matchByLocationAndLine, matchByHeadingOnly} {
		for newIdx := range newScenes {
			if _, done := matched[newIdx]; done {
				continue
			}

			bestOld := -1
			bestDistance := 0

			for oldIdx := range oldScenes {
				if taken[oldIdx] {
					continue
				}

				distance, ok := candidateDistance(&oldScenes[oldIdx], &newScenes[newIdx], strategy)
				if !ok {
					continue
				}

				if bestOld == -1 || distance < bestDistance {
					bestOld = oldIdx
					bestDistance = distance
				}
			}

			if bestOld >= 0 {
				taken[bestOld] = true
				matched[newIdx] = &oldScenes[bestOld]
			}
		}
	}

	return matched
}

// candidateDistance 判断旧场景是否满足给定策略，返回行距
func candidateDistance(old *models.Scene, parsed *models.ParsedScene, strategy matchStrategy) (int, bool) {
	distance := old.Fountain.StartLine - parsed.StartLine
	if distance < 0 {
		distance = -distance
	}

	oldHeading := strings.ToUpper(strings.TrimSpace(old.Heading))
	newHeading := strings.ToUpper(strings.TrimSpace(parsed.Heading))

	switch strategy {
	case matchByHeadingAndLine:
		return distance, oldHeading == newHeading && oldHeading != "" && distance <= maxStartLineDrift

	case matchByLocationAndLine:
		oldLoc := ExtractLocationName(old.Heading)
		newLoc := parsed.LocationName
		if newLoc == "" {
			newLoc = ExtractLocationName(parsed.Heading)
		}
		return distance, oldLoc != "" && oldLoc == newLoc && distance <= maxStartLineDrift

	case matchByHeadingOnly:
		return distance, oldHeading == newHeading && oldHeading != ""
	}

	return 0, false
}

// CarryMetadata 将匹配到的旧场景元数据套用到新解析场景上
// 标题/行号/标签取新解析值；概要仅在新解析没有时继承；
// 道具关联永不从文本重推，只随旧场景结转。
func (s *RescanService) CarryMetadata(parsed *models.ParsedScene, old *models.Scene) models.Scene {
	scene := models.Scene{
		Heading: parsed.Heading,
		Status:  models.SceneStatusDraft,
		Fountain: models.FountainMeta{
			StartLine: parsed.StartLine,
			EndLine:   parsed.EndLine,
		},
		Synopsis:   parsed.Synopsis,
		GroupLabel: parsed.SectionLabel,
	}

	if old == nil {
		if scene.Synopsis == "" {
			scene.Synopsis = "（待补充概要）"
		}
		return scene
	}

	scene.ID = old.ID
	scene.Status = old.Status
	scene.Images = old.Images
	scene.VideoAssets = old.VideoAssets
	scene.TimingMinutes = old.TimingMinutes
	scene.EstimatedPages = old.EstimatedPages
	scene.CreatedAt = old.CreatedAt
	scene.UpdatedAt = old.UpdatedAt
	scene.Fountain.Tags.PropIDs = old.Fountain.Tags.PropIDs

	if scene.Synopsis == "" {
		scene.Synopsis = old.Synopsis
	}
	if scene.GroupLabel == "" {
		scene.GroupLabel = old.GroupLabel
	}

	return scene
}

// NamesSimilar 批量导入用的模糊名称匹配：
// 一方是另一方的子串（忽略大小写），较短一方至少3个字符，
// 且在较长名称中按词边界出现——"A" 不会匹配 "SARAH"，
// 但 "RIVERA" 可以匹配 "DETECTIVE RIVERA"。
func NamesSimilar(a, b string) bool {
	an := strings.ToUpper(strings.TrimSpace(a))
	bn := strings.ToUpper(strings.TrimSpace(b))

	if an == "" || bn == "" {
		return false
	}
	if an == bn {
		return true
	}

	shorter, longer := an, bn
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if len(shorter) < 3 {
		return false
	}

	idx := strings.Index(longer, shorter)
	for idx >= 0 {
		startOK := idx == 0 || longer[idx-1] == ' '
		end := idx + len(shorter)
		endOK := end == len(longer) || longer[end] == ' '
		if startOK && endOK {
			return true
		}
		next := strings.Index(longer[idx+1:], shorter)
		if next < 0 {
			break
		}
		idx = idx + 1 + next
	}

	return false
}

// internal/services/scene_renumber.go
package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// sceneFingerprint 生成场景的内容指纹：大写标题 + 起始行
// 指纹与id无关，用于识别重复解析/合并产生的同一场景
func sceneFingerprint(s *models.Scene) string {
	heading := strings.ToUpper(strings.TrimSpace(s.Heading))
	return fmt.Sprintf("%s|%d", heading, s.Fountain.StartLine)
}

// sceneSortKey 场景的声明位置：order 优先，其次 number，缺省为 0
// Order 为零时无法区分"首位场景"与"未赋值"：仅当 Number 与之配对
// （Order == Number-1，稠密编号的产物）才视 Order=0 有效，
// 否则只带编号的记录回退到 Number
func sceneSortKey(s *models.Scene) int {
	if s.Order > 0 {
		return s.Order
	}
	if s.Number > 0 {
		if s.Order == s.Number-1 {
			return s.Order
		}
		return s.Number
	}
	return 0
}

// DedupAndRenumberScenes 去重并稠密重编号场景列表
//
// 过程：
//  1. 按指纹去重，指纹冲突时保留声明位置更小的一个（先导入者优先）
//  2. 按原始id二次去重（防御性）
//  3. 按声明位置升序排序后重新赋 Order = i, Number = i+1
//
// 空标题场景永不视为重复：两个空标题不能坍缩成一个。
// 该过程幂等：对自身输出再执行一次结果不变。
func DedupAndRenumberScenes(scenes []models.Scene) []models.Scene {
	if len(scenes) == 0 {
		return []models.Scene{}
	}

	kept := make([]models.Scene, 0, len(scenes))
	byFingerprint := make(map[string]int) // 指纹 -> kept 下标
	seenIDs := make(map[string]bool)

	for _, candidate := range scenes {
		blankHeading := strings.TrimSpace(candidate.Heading) == ""

		// id级去重：后到的同id记录直接丢弃
		if candidate.ID != "" && seenIDs[candidate.ID] {
			continue
		}

		if blankHeading {
			// 空标题场景不参与指纹去重
			kept = append(kept, candidate)
			if candidate.ID != "" {
				seenIDs[candidate.ID] = true
			}
			continue
		}

		fp := sceneFingerprint(&candidate)
		if idx, exists := byFingerprint[fp]; exists {
			// 指纹冲突：声明位置更小者为权威版本
			if sceneSortKey(&candidate) < sceneSortKey(&kept[idx]) {
				if kept[idx].ID != "" {
					delete(seenIDs, kept[idx].ID)
				}
				kept[idx] = candidate
				if candidate.ID != "" {
					seenIDs[candidate.ID] = true
				}
			}
			continue
		}

		byFingerprint[fp] = len(kept)
		kept = append(kept, candidate)
		if candidate.ID != "" {
			seenIDs[candidate.ID] = true
		}
	}

	// 按声明位置稳定排序
	sort.SliceStable(kept, func(i, j int) bool {
		return sceneSortKey(&kept[i]) < sceneSortKey(&kept[j])
	})

	// 稠密重编号
	for i := range kept {
		kept[i].Order = i
		kept[i].Number = i + 1
	}

	return kept
}

// internal/models/script.go
package models

// ParsedScene 剧本解析器输出的单个场景
// 只携带文本层信息，用户元数据由重扫匹配器从旧场景继承
type ParsedScene struct {
	Heading        string   `json:"heading"`
	StartLine      int      `json:"start_line"`
	EndLine        int      `json:"end_line"`
	Synopsis       string   `json:"synopsis,omitempty"`
	SectionLabel   string   `json:"section_label,omitempty"`
	CharacterNames []string `json:"character_names,omitempty"`
	LocationName   string   `json:"location_name,omitempty"`
}

// ParseResult 剧本解析结果：场景列表加发现的实体名集合
type ParseResult struct {
	Scenes         []ParsedScene `json:"scenes"`
	CharacterNames []string      `json:"character_names"`
	LocationNames  []string      `json:"location_names"`
}

// RescanResult 重扫完成后的汇总
type RescanResult struct {
	Scenes        []Scene `json:"scenes"`
	MatchedCount  int     `json:"matched_count"`
	NewCount      int     `json:"new_count"`
	NewCharacters int     `json:"new_characters"`
	NewLocations  int     `json:"new_locations"`
}

// internal/models/scene.go
package models

import (
	"time"
)

// SceneStatus 场景制作状态
type SceneStatus string

const (
	SceneStatusDraft  SceneStatus = "draft"
	SceneStatusReview SceneStatus = "review"
	SceneStatusFinal  SceneStatus = "final"
)

// SceneTags 场景标签：由剧本解析得到的实体引用
type SceneTags struct {
	CharacterIDs []string `json:"character_ids,omitempty"`
	LocationID   string   `json:"location_id,omitempty"`
	PropIDs      []string `json:"prop_ids,omitempty"`
}

// FountainMeta 场景在剧本文本中的位置与标签
type FountainMeta struct {
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Tags      SceneTags `json:"tags"`
}

// Scene 表示剧本中的一个场景
// 不变式：全部场景的 Order 构成 0..N-1 的稠密排列，Number = Order + 1
type Scene struct {
	ID             string       `json:"id"`
	Heading        string       `json:"heading"` // 例如 "INT. KITCHEN - DAY"
	Order          int          `json:"order"`
	Number         int          `json:"number"`
	Synopsis       string       `json:"synopsis,omitempty"`
	Status         SceneStatus  `json:"status"`
	Fountain       FountainMeta `json:"fountain"`
	Images         []ImageRef   `json:"images,omitempty"`
	VideoAssets    []string     `json:"video_assets,omitempty"`
	TimingMinutes  float64      `json:"timing_minutes,omitempty"`
	EstimatedPages float64      `json:"estimated_pages,omitempty"`
	GroupLabel     string       `json:"group_label,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ImageRef 实体关联的图片引用
type ImageRef struct {
	Key     string    `json:"key"` // 存储键
	Caption string    `json:"caption,omitempty"`
	Angle   string    `json:"angle,omitempty"`
	Source  string    `json:"source,omitempty"`
	AddedAt time.Time `json:"added_at,omitempty"`
}

// Touched 返回实体的有效修改时间（UpdatedAt 缺失时回退 CreatedAt）
func (s *Scene) Touched() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

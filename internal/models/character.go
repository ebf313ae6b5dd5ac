// internal/models/character.go
package models

import "time"

// CharacterType 角色戏份类型
type CharacterType string

const (
	CharacterTypeLead       CharacterType = "lead"
	CharacterTypeSupporting CharacterType = "supporting"
	CharacterTypeMinor      CharacterType = "minor"
)

// ArcStatus 角色弧线状态
type ArcStatus string

const (
	ArcStatusIntroduced ArcStatus = "introduced"
	ArcStatusDeveloping ArcStatus = "developing"
	ArcStatusResolved   ArcStatus = "resolved"
)

// Character 表示剧本中的一个角色
// 角色名非严格唯一：批量导入时按模糊匹配规则合并同名角色
type Character struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Aliases     []string      `json:"aliases,omitempty"` // 导入时模糊匹配到的别名
	Type        CharacterType `json:"type"`
	ArcStatus   ArcStatus     `json:"arc_status"`
	Description string        `json:"description,omitempty"`
	ArcNotes    string        `json:"arc_notes,omitempty"`
	Images      []ImageRef    `json:"images,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Touched 返回实体的有效修改时间
func (c *Character) Touched() time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

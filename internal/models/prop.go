// internal/models/prop.go
package models

import "time"

// Prop 表示一个道具资产
// 道具与场景的关联只存储在 Scene.Fountain.Tags.PropIDs 上，
// 道具侧的场景列表通过 GetPropScenes 推导，不落盘
type Prop struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"` // weapon, vehicle, document, etc.
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Images      []ImageRef `json:"images,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Touched 返回实体的有效修改时间
func (p *Prop) Touched() time.Time {
	if !p.UpdatedAt.IsZero() {
		return p.UpdatedAt
	}
	return p.CreatedAt
}

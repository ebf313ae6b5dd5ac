// internal/models/location.go
package models

import "time"

// LocationType 场地内外景类型
type LocationType string

const (
	LocationTypeInt    LocationType = "INT"
	LocationTypeExt    LocationType = "EXT"
	LocationTypeIntExt LocationType = "INT/EXT"
)

// Location 表示剧本中的一个拍摄场地
type Location struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Type            LocationType `json:"type"`
	Description     string       `json:"description,omitempty"`
	Address         string       `json:"address,omitempty"`
	Atmosphere      string       `json:"atmosphere,omitempty"`
	SetRequirements string       `json:"set_requirements,omitempty"`
	ProductionNotes string       `json:"production_notes,omitempty"`
	Images          []ImageRef   `json:"images,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Touched 返回实体的有效修改时间
func (l *Location) Touched() time.Time {
	if !l.UpdatedAt.IsZero() {
		return l.UpdatedAt
	}
	return l.CreatedAt
}

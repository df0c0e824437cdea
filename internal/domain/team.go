package domain

import "time"

// Team 团队，是所有可归属实体的所有权单元
type Team struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Team) GetID() string   { return t.ID }
func (t *Team) SetID(id string) { t.ID = id }

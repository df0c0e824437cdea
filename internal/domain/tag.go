package domain

import "time"

// Tag 咨询标签，按团队隔离
type Tag struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	OwnerID   string    `json:"ownerId" gorm:"type:varchar(36);index;not null"`
	Owner     *Team     `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t *Tag) GetID() string       { return t.ID }
func (t *Tag) SetID(id string)     { t.ID = id }
func (t *Tag) OwnerTeamID() string { return t.OwnerID }

func (t *Tag) SetOwnerTeamID(teamID string) {
	t.OwnerID = teamID
	if t.Owner != nil && t.Owner.ID != teamID {
		t.Owner = nil
	}
}

func (t *Tag) AssignOwner(team *Team) {
	t.Owner = team
	if team != nil {
		t.OwnerID = team.ID
	} else {
		t.OwnerID = ""
	}
}

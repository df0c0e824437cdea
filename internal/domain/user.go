package domain

import "time"

// User 系统用户，将一个 Person 关联到当前团队和所属团队集合。
// 入站邮件通过 User 判断"这个邮箱属于哪个团队"。
type User struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PersonID      string    `json:"personId" gorm:"type:varchar(36);uniqueIndex;not null"`
	RelatedPerson *Person   `json:"relatedPerson,omitempty" gorm:"foreignKey:PersonID"`
	CurrentTeamID string    `json:"currentTeamId" gorm:"type:varchar(36);index"`
	CurrentTeam   *Team     `json:"currentTeam,omitempty" gorm:"foreignKey:CurrentTeamID"`
	Teams         []*Team   `json:"teams,omitempty" gorm:"many2many:user_teams"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (u *User) GetID() string   { return u.ID }
func (u *User) SetID(id string) { u.ID = id }

// IsMemberOf 判断用户是否属于指定团队
func (u *User) IsMemberOf(teamID string) bool {
	if u.CurrentTeamID == teamID {
		return true
	}
	for _, t := range u.Teams {
		if t != nil && t.ID == teamID {
			return true
		}
	}
	return false
}

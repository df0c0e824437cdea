package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
)

// findPersonByEmail 按规范化邮箱查找联系人，没有时返回 nil。
// 存在多个同邮箱联系人时取第一个并记录警告。
func findPersonByEmail(ctx context.Context, persons storage.Repository[*domain.Person], email string, log *zap.Logger) (*domain.Person, error) {
	email = domain.NormalizeEmail(email)
	matches, err := persons.Find(ctx, []storage.Cond[*domain.Person]{storage.PersonByEmail(email)})
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		log.Warn("multiple persons share one email, using the first",
			zap.String("email", email),
			zap.Int("count", len(matches)))
	}
	return matches[0], nil
}

// findUserByPerson 查找关联到联系人的用户，没有时返回 nil
func findUserByPerson(ctx context.Context, users storage.Repository[*domain.User], person *domain.Person, log *zap.Logger) (*domain.User, error) {
	if person == nil {
		return nil, nil
	}

	matches, err := users.Find(ctx, []storage.Cond[*domain.User]{storage.UserByPerson(person.ID)},
		storage.PreloadRelatedPerson, storage.PreloadCurrentTeam)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		log.Warn("multiple users linked to one person, using the first",
			zap.String("person_id", person.ID),
			zap.Int("count", len(matches)))
	}
	return matches[0], nil
}

// currentTeam 返回用户的当前团队，用户没有当前团队时返回 nil
func currentTeam(ctx context.Context, teams storage.Repository[*domain.Team], user *domain.User) (*domain.Team, error) {
	if user == nil || user.CurrentTeamID == "" {
		return nil, nil
	}
	if user.CurrentTeam != nil && user.CurrentTeam.ID == user.CurrentTeamID {
		return user.CurrentTeam, nil
	}

	team, err := teams.Get(ctx, user.CurrentTeamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", user.CurrentTeamID, err)
	}
	return team, nil
}

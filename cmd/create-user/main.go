package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"clientmanager/backend/internal/config"
	"clientmanager/backend/internal/domain"
	"clientmanager/backend/internal/storage"
	"clientmanager/backend/internal/storage/postgres"
)

// main 创建员工联系人及其系统用户，并将其加入指定团队（团队不存在时创建）。
// 入站邮件依靠这些用户确定归属团队。
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-user <email> <display name> <team name>")
		os.Exit(1)
	}

	email := domain.NormalizeEmail(os.Args[1])
	displayName := strings.TrimSpace(os.Args[2])
	teamName := strings.TrimSpace(os.Args[3])

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" {
		fmt.Println("CLIENTMANAGER_DATABASE_TYPE and CLIENTMANAGER_DATABASE_DSN must be set")
		os.Exit(1)
	}

	if err := domain.ValidateEmail(email); err != nil {
		fmt.Printf("Invalid email: %v\n", err)
		os.Exit(1)
	}

	store, err := postgres.Open(&cfg.Database)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 服务上下文，不带团队
	ctx := storage.WithTeam(context.Background(), "")

	var user *domain.User
	err = store.WithinTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		team, err := findOrCreateTeam(ctx, repos.Teams, teamName)
		if err != nil {
			return err
		}

		person, err := findOrCreateEmployee(ctx, repos.Persons, email, displayName)
		if err != nil {
			return err
		}

		users, err := repos.Users.Find(ctx, []storage.Cond[*domain.User]{storage.UserByPerson(person.ID)})
		if err != nil {
			return fmt.Errorf("query users: %w", err)
		}
		if len(users) > 0 {
			return fmt.Errorf("user for %s already exists", email)
		}

		user = &domain.User{
			PersonID:      person.ID,
			CurrentTeamID: team.ID,
			Teams:         []*domain.Team{team},
		}
		return repos.Users.Save(ctx, user)
	})
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("User created successfully!")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("Email: %s\n", email)
	fmt.Printf("Team: %s (%s)\n", teamName, user.CurrentTeamID)
}

func findOrCreateTeam(ctx context.Context, teams storage.Repository[*domain.Team], name string) (*domain.Team, error) {
	all, err := teams.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	for _, t := range all {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}

	team := &domain.Team{Name: name}
	if err := team.Validate(); err != nil {
		return nil, err
	}
	if err := teams.Save(ctx, team); err != nil {
		return nil, fmt.Errorf("save team: %w", err)
	}
	return team, nil
}

// findOrCreateEmployee 复用已存在的联系人并将其角色改为员工
func findOrCreateEmployee(ctx context.Context, persons storage.Repository[*domain.Person], email, displayName string) (*domain.Person, error) {
	found, err := persons.Find(ctx, []storage.Cond[*domain.Person]{storage.PersonByEmail(email)})
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}

	var person *domain.Person
	if len(found) > 0 {
		person = found[0]
	} else {
		person = domain.NewPerson(displayName, email, domain.RoleEmployee, time.Now().UTC())
	}
	person.Role = domain.RoleEmployee

	if err := person.Validate(); err != nil {
		return nil, err
	}
	if err := persons.Save(ctx, person); err != nil {
		return nil, fmt.Errorf("save person: %w", err)
	}
	return person, nil
}

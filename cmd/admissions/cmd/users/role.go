package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/KevinAiCloud/InterviewAI/internal/db/bunx"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
)

var (
	emailFlag string
	roleFlag  string
)

var setRoleCmd = &cobra.Command{
	Use:   "set-role",
	Short: "Change the role of a user who has signed in before",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := roles.Role(strings.ToLower(strings.TrimSpace(roleFlag)))
		if !role.IsValid() {
			return fmt.Errorf("--role must be %q or %q", roles.User, roles.Admin)
		}

		ctx := cmd.Context()
		return withUser(ctx, func(repo *repository.BunUserRepository, user *models.User) error {
			if err := repo.SetRole(ctx, user.ID, role.String()); err != nil {
				return fmt.Errorf("failed to set role: %w", err)
			}
			cmd.Printf("%s (%s) is now %s\n", user.Email, user.ID, role)
			cmd.Println("Signed-in browsers pick up the new role the next time their session resolves.")
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the role record of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(_ *repository.BunUserRepository, user *models.User) error {
			cmd.Printf("ID:      %s\n", user.ID)
			cmd.Printf("Email:   %s\n", user.Email)
			cmd.Printf("Role:    %s\n", roles.Parse(user.Role))
			cmd.Printf("Created: %s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		})
	},
}

// withUser looks up the --email user and calls fn with it.
func withUser(ctx context.Context, fn func(*repository.BunUserRepository, *models.User) error) error {
	if emailFlag == "" {
		return fmt.Errorf("--email flag is required")
	}
	if _, err := mail.ParseAddress(emailFlag); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	db, err := open(ctx)
	if err != nil {
		return err
	}
	defer bunx.Close(db)

	repo := repository.NewBunUserRepository(db)
	user, err := repo.GetByEmail(ctx, emailFlag)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("no user with email %s; users are created on their first sign-in", emailFlag)
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	return fn(repo, user)
}

func open(ctx context.Context) (*bun.DB, error) {
	cfg := Config()
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

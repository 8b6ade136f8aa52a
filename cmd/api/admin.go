package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

var errInactiveAccount = errors.New("account is not active")

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin account if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")

			cfg, l, err := setup(cmd, true)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			user, created, err := ensureAdmin(cmd.Context(), postgres.NewUserRepository(db), security.NewBcryptHasher(0), email, name, password)
			if err != nil {
				return fmt.Errorf("failed to bootstrap admin: %w", err)
			}
			if created {
				l.Info().Str("user_id", user.ID.String()).Msg("created admin account")
			} else {
				l.Info().Str("user_id", user.ID.String()).Msg("account already exists")
			}
			return nil
		},
	}
	bootstrap.Flags().String("email", "", "admin email")
	bootstrap.Flags().String("name", "Administrator", "display name")
	bootstrap.Flags().String("password", "", "initial password")
	_ = bootstrap.MarkFlagRequired("email")
	_ = bootstrap.MarkFlagRequired("password")
	cmd.AddCommand(bootstrap)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, _, err := setup(cmd, true)
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			jwtSvc := auth.NewJWTService(auth.Config{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, TTL: ttl})
			token, err := issueToken(cmd.Context(), postgres.NewUserRepository(db), jwtSvc, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// ensureAdmin returns the user with email, creating an active admin when none
// exists. Existing users keep their role.
func ensureAdmin(
	ctx context.Context,
	users repository.UserRepository,
	hasher security.PasswordHasher,
	email, name, password string,
) (*model.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, errors.New("email is required")
	}

	existing, err := users.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	if password == "" {
		return nil, false, errors.New("password is required to create an admin")
	}
	if err := security.ValidatePassword(password); err != nil {
		return nil, false, err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, false, err
	}

	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        email,
		Name:         name,
		Role:         model.RoleAdmin,
		Status:       model.UserStatusActive,
		PasswordHash: hash,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// issueToken signs a token for an active account.
func issueToken(ctx context.Context, users repository.UserRepository, jwtSvc auth.JWTService, email string) (string, error) {
	user, err := users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if !user.IsActive() {
		return "", errInactiveAccount
	}
	return jwtSvc.GenerateToken(user)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

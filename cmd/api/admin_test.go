package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type memUsers struct {
	byEmail map[string]*model.User
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	users := &memUsers{byEmail: map[string]*model.User{}}
	hasher := security.NewBcryptHasher(4)
	ctx := context.Background()

	u, created, err := ensureAdmin(ctx, users, hasher, " Root@Clinic.test ", "Root", "correct-horse")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "root@clinic.test", u.Email)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.True(t, u.IsActive())
	assert.NoError(t, hasher.Compare(u.PasswordHash, "correct-horse"))

	again, created, err := ensureAdmin(ctx, users, hasher, "root@clinic.test", "Other", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestEnsureAdminValidation(t *testing.T) {
	users := &memUsers{byEmail: map[string]*model.User{}}
	hasher := security.NewBcryptHasher(4)

	_, _, err := ensureAdmin(context.Background(), users, hasher, "", "Root", "correct-horse")
	assert.ErrorContains(t, err, "email is required")

	_, _, err = ensureAdmin(context.Background(), users, hasher, "root@clinic.test", "Root", "")
	assert.ErrorContains(t, err, "password is required")

	_, _, err = ensureAdmin(context.Background(), users, hasher, "root@clinic.test", "Root", "short")
	assert.ErrorIs(t, err, security.ErrPasswordTooShort)
	assert.Empty(t, users.byEmail)
}

func TestIssueToken(t *testing.T) {
	active := &model.User{Base: model.Base{ID: uuid.New()}, Email: "desk@clinic.test", Role: model.RoleReception, Status: model.UserStatusActive}
	gone := &model.User{Base: model.Base{ID: uuid.New()}, Email: "gone@clinic.test", Role: model.RoleDoctor, Status: model.UserStatusInactive}
	users := &memUsers{byEmail: map[string]*model.User{active.Email: active, gone.Email: gone}}
	jwtSvc := auth.NewJWTService(auth.Config{Secret: "test-secret", Issuer: "clinic-test"})
	ctx := context.Background()

	token, err := issueToken(ctx, users, jwtSvc, " DESK@clinic.test")
	require.NoError(t, err)
	claims, err := jwtSvc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, active.ID, claims.UserID)

	_, err = issueToken(ctx, users, jwtSvc, gone.Email)
	assert.ErrorIs(t, err, errInactiveAccount)

	_, err = issueToken(ctx, users, jwtSvc, "nobody@clinic.test")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"admin", "bootstrap"},
		{"token"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("port"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestTokenRequiresEmail(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"token"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "email" not set`)
}

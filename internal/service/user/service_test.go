package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type mockRepo struct {
	byID map[uuid.UUID]*model.User
}

func (m *mockRepo) Create(_ context.Context, u *model.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *mockRepo) Update(_ context.Context, u *model.User) error {
	if _, ok := m.byID[u.ID]; !ok {
		return repository.ErrNotFound
	}
	m.byID[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newService() (*Service, *mockRepo) {
	repo := &mockRepo{byID: map[uuid.UUID]*model.User{}}
	return NewService(repo, security.NewBcryptHasher(bcrypt.MinCost), nil), repo
}

func admin() *model.Actor {
	return model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleAdmin})
}

func TestCreateUser(t *testing.T) {
	svc, repo := newService()

	u, err := svc.CreateUser(context.Background(), admin(), &model.CreateUserRequest{
		Email:    " Dr.Shah@Clinic.test ",
		Name:     "Dr Shah",
		Role:     model.RoleDoctor,
		Password: "correct-horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "dr.shah@clinic.test", u.Email)
	assert.True(t, u.IsActive())
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse")))
	assert.Contains(t, repo.byID, u.ID)

	_, err = svc.CreateUser(context.Background(), admin(), &model.CreateUserRequest{
		Email: "dr.shah@clinic.test", Name: "Dup", Role: model.RoleStaff, Password: "another-pass",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCreateUserRejections(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	doctor := model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleDoctor})

	_, err := svc.CreateUser(ctx, doctor, &model.CreateUserRequest{Email: "a@b.c", Name: "A", Role: model.RoleStaff, Password: "long-enough"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.CreateUser(ctx, admin(), &model.CreateUserRequest{Email: "a@b.c", Name: "A", Role: "nurse", Password: "long-enough"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = svc.CreateUser(ctx, admin(), &model.CreateUserRequest{Email: "a@b.c", Name: "A", Role: model.RoleStaff, Password: "short"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestGetUser(t *testing.T) {
	svc, repo := newService()
	u := &model.User{Base: model.Base{ID: uuid.New()}, Email: "x@y.z"}
	repo.byID[u.ID] = u

	got, err := svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = svc.GetUser(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateUserNotifiesListeners(t *testing.T) {
	svc, repo := newService()
	target := &model.User{Base: model.Base{ID: uuid.New()}, Name: "Reception", Role: model.RoleReception, Status: model.UserStatusActive}
	repo.byID[target.ID] = target

	var changed []uuid.UUID
	svc.OnUserChanged(func(id uuid.UUID) { changed = append(changed, id) })

	inactive := model.UserStatusInactive
	u, err := svc.UpdateUser(context.Background(), admin(), target.ID, &model.UpdateUserRequest{Status: &inactive})
	require.NoError(t, err)
	assert.False(t, u.IsActive())
	assert.Equal(t, []uuid.UUID{target.ID}, changed)

	// unchanged fields do not trigger a write
	_, err = svc.UpdateUser(context.Background(), admin(), target.ID, &model.UpdateUserRequest{Status: &inactive})
	require.NoError(t, err)
	assert.Len(t, changed, 1)
}

func TestUpdateUserRejections(t *testing.T) {
	svc, repo := newService()
	self := admin()
	repo.byID[self.ID] = &model.User{Base: model.Base{ID: self.ID}, Role: model.RoleAdmin, Status: model.UserStatusActive}
	doctor := model.RoleDoctor

	_, err := svc.UpdateUser(context.Background(), self, self.ID, &model.UpdateUserRequest{Role: &doctor})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	nonAdmin := model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleDoctor})
	_, err = svc.UpdateUser(context.Background(), nonAdmin, self.ID, &model.UpdateUserRequest{Role: &doctor})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.UpdateUser(context.Background(), self, uuid.New(), &model.UpdateUserRequest{Role: &doctor})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, model.RoleAdmin, repo.byID[self.ID].Role)
}

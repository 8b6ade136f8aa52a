package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
)

type stubService struct {
	req    *model.CreateUserRequest
	update *model.UpdateUserRequest
}

func (s *stubService) UpdateUser(_ context.Context, _ *model.Actor, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	s.update = req
	u := &model.User{Base: model.Base{ID: id}, Role: model.RoleDoctor, Status: model.UserStatusActive}
	if req.Status != nil {
		u.Status = *req.Status
	}
	return u, nil
}

func (s *stubService) CreateUser(_ context.Context, _ *model.Actor, req *model.CreateUserRequest) (*model.User, error) {
	s.req = req
	return &model.User{Base: model.Base{ID: uuid.New()}, Email: req.Email, Role: req.Role, PasswordHash: "secret-hash"}, nil
}

func router(t *testing.T, svc Service, role model.Role) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())
	actor := model.NewActor(&model.User{Base: model.Base{ID: uuid.New()}, Name: "Ops", Role: role})
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextActor, actor); c.Next() })
	NewHandler(svc).RegisterRoutes(r.Group(""))
	return r
}

func TestCreateUserHidesPasswordHash(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc, model.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"email":"lab@clinic.test","name":"Lab","role":"laboratory","password":"long-password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-hash")
	assert.Equal(t, model.RoleLaboratory, svc.req.Role)
}

func TestCreateUserValidatesRole(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc, model.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"email":"n@clinic.test","name":"N","role":"nurse","password":"long-password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "role must be a valid role")
	assert.Nil(t, svc.req)
}

func TestMeListsCapabilities(t *testing.T) {
	r := router(t, &stubService{}, model.RoleLaboratory)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data meResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, model.RoleLaboratory, body.Data.Role)
	assert.Equal(t, []model.Capability{
		model.CapMoveStage, model.CapCompleteLabTest, model.CapDispense, model.CapViewAll,
	}, body.Data.Capabilities)
}

func TestUpdateUser(t *testing.T) {
	svc := &stubService{}
	r := router(t, svc, model.RoleAdmin)

	req := httptest.NewRequest(http.MethodPatch, "/users/"+uuid.NewString(), strings.NewReader(`{"status":"inactive"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.update.Status)
	assert.Equal(t, model.UserStatusInactive, *svc.update.Status)
	assert.Contains(t, w.Body.String(), `"status":"inactive"`)

	req = httptest.NewRequest(http.MethodPatch, "/users/"+uuid.NewString(), strings.NewReader(`{"status":"suspended"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

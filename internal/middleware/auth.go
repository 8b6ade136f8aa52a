package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

const ContextActor = "actor"

// UserLookup loads the stored account behind a token subject.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type AuthMiddleware struct {
	jwt   auth.JWTService
	users UserLookup
	cache *gocache.Cache
}

// NewAuthMiddleware caches resolved actors for ttl. A zero ttl disables the
// cache.
func NewAuthMiddleware(jwt auth.JWTService, users UserLookup, ttl time.Duration) *AuthMiddleware {
	m := &AuthMiddleware{jwt: jwt, users: users}
	if ttl > 0 {
		m.cache = gocache.New(ttl, 2*ttl)
	}
	return m
}

// Authenticate verifies the bearer token and stores the actor on the context.
// The role comes from the stored user, not from the token.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("invalid authorization format")))
			return
		}

		claims, err := m.jwt.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		actor, err := m.resolveActor(c.Request.Context(), claims.UserID)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

func (m *AuthMiddleware) resolveActor(ctx context.Context, userID uuid.UUID) (*model.Actor, error) {
	key := userID.String()
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			return cached.(*model.Actor), nil
		}
	}

	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(auth.ErrMissingUser)
		}
		log.Error().Err(err).Str("user_id", key).Msg("Failed to load user for token")
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive() || !user.Role.Valid() {
		return nil, apperrors.Unauthorized(errors.New("user is not active"))
	}

	actor := model.NewActor(user)
	if m.cache != nil {
		m.cache.SetDefault(key, actor)
	}
	return actor, nil
}

// Invalidate drops a cached actor, e.g. after the account changed.
func (m *AuthMiddleware) Invalidate(userID uuid.UUID) {
	if m.cache != nil {
		m.cache.Delete(userID.String())
	}
}

// RequireCapability rejects actors whose role lacks capability.
func RequireCapability(capability model.Capability, reason string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no authenticated actor")))
			return
		}
		if !actor.Can(capability) {
			httputil.RespondWithError(c, apperrors.Forbidden(reason))
			return
		}
		c.Next()
	}
}

// GetActor returns the actor stored by Authenticate.
func GetActor(c *gin.Context) (*model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*model.Actor)
	return actor, ok && actor != nil
}

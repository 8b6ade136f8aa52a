package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// Actor returns the authenticated actor or writes a 401 and returns false.
func Actor(c *gin.Context) (*model.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("no authenticated actor")))
		return nil, false
	}
	return actor, true
}

// ParseID reads a uuid path parameter or writes a 400 and returns false.
func ParseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes and validates the body or writes a 400 and returns false.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.ValidationMessage(err), err))
		return false
	}
	return true
}

// BindQuery decodes and validates query parameters or writes a 400 and
// returns false.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.ValidationMessage(err), err))
		return false
	}
	return true
}

// QueryUUID parses an optional uuid query parameter into dst. It writes a 400
// and returns false when the value is malformed.
func QueryUUID(c *gin.Context, name string, dst **uuid.UUID) bool {
	raw := c.Query(name)
	if raw == "" {
		return true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return false
	}
	*dst = &id
	return true
}

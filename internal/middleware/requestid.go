package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"
	contextLogger    = "request_logger"
)

// Caller-supplied ids end up in log lines and response headers.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID tags the request with the caller's X-Request-ID, or a fresh uuid
// when it is missing or malformed. It also stores a request-scoped child of
// logger; RequestLogger returns it, and zerolog.Ctx finds it on the request
// context.
func RequestID(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if !validRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}

		reqLogger := logger.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Set(contextLogger, &reqLogger)
		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}

// RequestLogger returns the logger RequestID attached to the request. Without
// one it falls back to the global logger.
func RequestLogger(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(contextLogger); ok {
		if l, ok := v.(*zerolog.Logger); ok {
			return l
		}
	}
	return &log.Logger
}

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// Recovery turns a panicking handler into a 500. The panic is logged on the
// request logger with the acting user, so it can be tied to the visit or
// record being edited.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			event := RequestLogger(c).Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("path", c.Request.URL.Path)
			if actor, ok := GetActor(c); ok {
				event = event.Str("actor_id", actor.ID.String()).Str("role", string(actor.Role))
			}
			event.Msg("handler panicked")

			c.AbortWithStatusJSON(http.StatusInternalServerError, httputil.NewErrorResponse("internal server error"))
		}()
		c.Next()
	}
}

package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Total   *int        `json:"total,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithList sends a collection with its element count
func RespondWithList(c *gin.Context, data interface{}, total int) {
	resp := NewSuccessResponse(data)
	resp.Total = &total
	c.JSON(http.StatusOK, resp)
}

// RespondWithError maps err onto a status code and error envelope. Errors that
// are not AppErrors are logged and hidden behind a generic 500.
func RespondWithError(c *gin.Context, err error) {
	logger := zerolog.Ctx(c.Request.Context())
	appErr, ok := errors.As(err)
	if !ok {
		logger.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Msg("Unhandled error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
		return
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error().Err(appErr.Err).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
}

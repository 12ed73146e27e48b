// README: Base handler utilities (response envelope, error mapping).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripmerge/internal/apperr"
)

type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeOK(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(status, envelope{
		Success: false,
		Message: msg,
		Error:   &errorBody{Kind: apperr.KindName(err), Message: msg},
	})
}

func writeBadRequest(c *gin.Context, msg string) {
	writeError(c, apperr.Validation("request", msg))
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrStateConflict:
		return http.StatusConflict
	case apperr.ErrExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

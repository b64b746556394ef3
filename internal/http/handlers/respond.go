package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// StatusFor maps an error class onto its HTTP status. Conflicts are
// user-correctable input problems and answer 400 like validation failures.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondAppError renders any service error in the standard envelope. Internal
// causes are logged and never echoed to the caller.
func RespondAppError(ctx *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("Something went wrong", err)
	}

	status := StatusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(ctx.Request.Context(), "request_failed",
			"code", e.Code,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
	}

	RespondError(ctx, status, e.Code, e.Message, nil)
}

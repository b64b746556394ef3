package handlers_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindConflict, http.StatusBadRequest},
		{apperr.KindUnauthenticated, http.StatusUnauthorized},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := handlers.StatusFor(tc.kind); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestRespondAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "wrapped conflict",
			err:     fmt.Errorf("register: %w", apperr.Conflict("email_taken", "Email already taken")),
			status:  http.StatusBadRequest,
			code:    "email_taken",
			message: "Email already taken",
		},
		{
			name:    "internal hides cause",
			err:     apperr.Internal("Could not load user", errors.New("dial tcp 10.0.0.1:5432")),
			status:  http.StatusInternalServerError,
			code:    "internal_error",
			message: "Could not load user",
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    "internal_error",
			message: "Something went wrong",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(ctx *gin.Context) {
				ctx.Set("request_id", "req-1")
				handlers.RespondAppError(ctx, tc.err)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}

			var body struct {
				Error handlers.APIError `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.code || body.Error.Message != tc.message {
				t.Fatalf("got %+v", body.Error)
			}
			if body.Error.RequestID != "req-1" {
				t.Fatalf("request id = %q", body.Error.RequestID)
			}
		})
	}
}

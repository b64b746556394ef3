package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/orderhub/internal/domain/order"
	"github.com/geocoder89/orderhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindDetails struct {
	JSON   string                `json:"json"`
	Field  string                `json:"field"`
	Fields []handlers.FieldError `json:"fields"`
}

// bindRouter exposes one POST route per request type under test.
func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/register", bindOnly[handlers.RegisterRequest])
	r.POST("/orders", bindOnly[order.CreateOrderRequest])
	r.GET("/users", func(ctx *gin.Context) {
		var q handlers.ListUsersQuery
		if handlers.BindQuery(ctx, &q) {
			ctx.Status(http.StatusOK)
		}
	})
	return r
}

func bindOnly[T any](ctx *gin.Context) {
	var req T
	if handlers.BindJSON(ctx, &req) {
		ctx.Status(http.StatusCreated)
	}
}

func send(t *testing.T, r http.Handler, method, path, body string) (int, bindDetails) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env struct {
		Error struct {
			Code    string      `json:"code"`
			Details bindDetails `json:"details"`
		} `json:"error"`
	}
	if w.Code == http.StatusBadRequest {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
		}
		if env.Error.Code != "invalid_request" {
			t.Fatalf("code = %q, want invalid_request", env.Error.Code)
		}
	}
	return w.Code, env.Error.Details
}

func rulesByField(fields []handlers.FieldError) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Field] = f.Rule
		if f.Message == "" {
			out[f.Field] += "(no message)"
		}
	}
	return out
}

func TestBindJSON_ReportsWireFieldNames(t *testing.T) {
	r := bindRouter()

	tests := []struct {
		name  string
		path  string
		body  string
		rules map[string]string
	}{
		{
			name:  "register",
			path:  "/register",
			body:  `{"email":"not-an-email","username":"ab"}`,
			rules: map[string]string{"email": "email", "password": "required", "username": "min"},
		},
		{
			name:  "nested order item",
			path:  "/orders",
			body:  `{"totalAmount":10,"items":[{"productId":1,"productName":"pen","quantity":-1}]}`,
			rules: map[string]string{"items[0].quantity": "min"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, details := send(t, r, http.MethodPost, tc.path, tc.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}

			got := rulesByField(details.Fields)
			for field, rule := range tc.rules {
				if got[field] != rule {
					t.Fatalf("field %q: got rule %q, want %q (all: %v)", field, got[field], rule, got)
				}
			}
		})
	}
}

func TestBindJSON_MalformedBodies(t *testing.T) {
	r := bindRouter()

	status, details := send(t, r, http.MethodPost, "/orders", `{"totalAmount":"ten","items":[]}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if details.JSON != "invalid_json_type" || details.Field != "totalAmount" {
		t.Fatalf("unexpected details: %+v", details)
	}
	if len(details.Fields) != 1 || details.Fields[0].Rule != "type" {
		t.Fatalf("expected one type error, got %+v", details.Fields)
	}

	status, details = send(t, r, http.MethodPost, "/register", `{"email":}`)
	if status != http.StatusBadRequest || details.JSON == "" {
		t.Fatalf("malformed body: status %d details %+v", status, details)
	}
}

func TestBindJSON_PasswordRule(t *testing.T) {
	r := bindRouter()

	tests := []struct {
		password string
		want     int
	}{
		{password: "password", want: http.StatusBadRequest},
		{password: "12345678", want: http.StatusBadRequest},
		{password: "pass1", want: http.StatusBadRequest},
		{password: "password1", want: http.StatusCreated},
	}

	for _, tc := range tests {
		t.Run(tc.password, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"email": "a@x.com", "password": tc.password})

			status, details := send(t, r, http.MethodPost, "/register", string(body))
			if status != tc.want {
				t.Fatalf("status = %d, want %d", status, tc.want)
			}
			if status == http.StatusBadRequest && rulesByField(details.Fields)["password"] != "password" {
				t.Fatalf("expected a password rule error, got %+v", details.Fields)
			}
		})
	}
}

func TestBindQuery_UsesFormNames(t *testing.T) {
	r := bindRouter()

	status, details := send(t, r, http.MethodGet, "/users?sortType=sideways&limit=500", "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}

	got := rulesByField(details.Fields)
	if got["sortType"] != "oneof" || got["limit"] != "max" {
		t.Fatalf("unexpected field errors: %v", got)
	}

	if status, _ := send(t, r, http.MethodGet, "/users?limit=5&sortType=asc", ""); status != http.StatusOK {
		t.Fatalf("valid query: status = %d", status)
	}
}

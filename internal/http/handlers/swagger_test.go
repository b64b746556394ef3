package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestDocsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/docs", SwaggerUI)
	r.GET(docsSpecPath, OpenAPISpec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("docs status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "openapi.yaml") {
		t.Fatalf("docs page does not link the openapi document: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, docsSpecPath, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("spec status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "openapi:") {
		t.Fatalf("unexpected spec body prefix: %.40s", w.Body.String())
	}
}

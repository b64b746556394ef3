package handlers

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

const (
	docsSpecPath   = "/docs/openapi.yaml"
	swaggerUIAsset = "https://unpkg.com/swagger-ui-dist@5"
)

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Assets}}/swagger-ui.css">
</head>
<body style="margin:0">
<div id="swagger-ui"></div>
<script src="{{.Assets}}/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({
  url: {{.SpecURL}},
  dom_id: "#swagger-ui",
  deepLinking: true,
  persistAuthorization: true,
  presets: [SwaggerUIBundle.presets.apis],
  layout: "BaseLayout"
});
</script>
</body>
</html>`))

// rendered once; the page has no per-request state
var docsHTML = renderDocs("OrderHub API Docs")

func renderDocs(title string) []byte {
	var buf bytes.Buffer
	err := docsPage.Execute(&buf, struct {
		Title   string
		Assets  string
		SpecURL string
	}{title, swaggerUIAsset, docsSpecPath})
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func SwaggerUI(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", docsHTML)
}

func OpenAPISpec(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "application/yaml; charset=utf-8", openAPISpec)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// openAPISpec holds the OpenAPI YAML loaded at startup.
var openAPISpec []byte

// SetOpenAPISpec sets the document served at /docs/openapi.yaml.
func SetOpenAPISpec(spec []byte) {
	openAPISpec = spec
}

// OpenAPISpec serves the raw OpenAPI YAML.
func OpenAPISpec(c *gin.Context) {
	if openAPISpec == nil {
		c.String(http.StatusNotFound, "OpenAPI spec not loaded")
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", openAPISpec)
}

const docsPage = `<!DOCTYPE html>
<html lang="fr">
<head>
  <meta charset="UTF-8">
  <title>Surplus Ledger - API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

// DocsUI serves a Swagger UI page that loads /docs/openapi.yaml.
func DocsUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}

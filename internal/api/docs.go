package api

import (
	"embed"
	"net/http"
)

//go:embed static/openapi.yaml
var docsFS embed.FS

const (
	openAPIPath = "/openapi.yaml"
	docsTitle   = "Inspectra API"
)

// docsPage renders the interactive reference for the crawl API.
const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <title>` + docsTitle + `</title>
  <meta name="description" content="Start breadth-first site crawls and follow their progress as Server-Sent Events."/>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css" />
  <style>
    body { margin: 0; background: #f4f6f8; font-family: sans-serif; }
    header { padding: 16px 24px; background: #1f2933; color: #f5f7fa; }
    header h1 { margin: 0 0 4px; font-size: 20px; }
    header p { margin: 2px 0; font-size: 14px; }
    header code { color: #9fb3c8; }
    #swagger-ui { box-sizing: border-box; }
  </style>
</head>
<body>
<header>
  <h1>` + docsTitle + `</h1>
  <p>Start a crawl with <code>POST /api/crawl</code> or <code>GET /api/crawl/stream?url=...</code>; each streams
  <code>log</code>, <code>progress</code>, <code>page</code>, <code>error</code> and <code>done</code> events.</p>
  <p>The last completed crawl is at <code>GET /api/crawl/latest</code>. Stored runs live under <code>/api/crawls</code>.</p>
  <p>OpenAPI document: <a href="` + openAPIPath + `" style="color:#9fb3c8">` + openAPIPath + `</a></p>
</header>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.onload = () => {
  SwaggerUIBundle({
    url: '` + openAPIPath + `',
    dom_id: '#swagger-ui',
    presets: [SwaggerUIBundle.presets.apis],
    layout: 'BaseLayout',
    docExpansion: 'list',
    tryItOutEnabled: false
  });
};
</script>
</body>
</html>`

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	http.ServeFileFS(w, r, docsFS, "static/openapi.yaml")
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docsPage))
}

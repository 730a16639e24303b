package api

import (
	_ "embed"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

//go:embed openapi.json
var openAPI []byte

const docsPage = `<!DOCTYPE html>
<html>
<head>
<title>profilegate</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});</script>
</body>
</html>
`

func (a *API) handleDocs(router *mux.Router) {
	router.Handle("/openapi.json", handlers.CompressHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPI)
	}))).Methods(http.MethodGet)

	router.Handle("/docs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(docsPage))
	})).Methods(http.MethodGet)
}

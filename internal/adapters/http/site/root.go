// Package site serves the service root.
package site

import (
	"context"
	"net/http"
)

// DocsPath is where the root redirects.
const DocsPath = "/api-docs"

// Register attaches the root route to mux. Only the exact path "/" is
// claimed, so unknown paths still 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /{$}", NewRootHandler())
}

// RootHandler sends visitors of "/" to the API documentation.
type RootHandler struct{}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, DocsPath, http.StatusFound)
}

package web

import (
	"embed"
	"net/http"
)

//go:embed static/index.html
var embeddedStaticFiles embed.FS

// handleIndex serves a minimal browser deck that mirrors the labels.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	index, err := embeddedStaticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(index)
}

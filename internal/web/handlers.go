package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/esg/internal/web/templates"
)

// healthTimeout bounds the dependency ping behind /healthz.
const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
}

// handleUploadPage renders the HTML upload form.
func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	page := templates.UploadPage(templates.UploadPageData{
		Title:  "ESG Data Upload",
		Action: "/api/upload-zip/",
		MaxMB:  s.cfg.Upload.MaxFileSize >> 20,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, detailResponse{Detail: msgUnexpected})
	}
}

// handleHealth reports 200 when the database answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.respondError(w, r, err, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

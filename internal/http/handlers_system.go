package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mcdry/internal/export"
	"mcdry/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports whether the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"sessions": s.sessions.Size(),
	}
	if err := s.repo.Ping(ctx); err != nil {
		checks["database"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleExport streams the whole ledger as an xlsx workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.repo.Snapshot(r.Context())
	if err != nil {
		s.serverError(w, r, "Export snapshot failed", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, snap); err != nil {
		s.serverError(w, r, "Export render failed", err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger exported",
		log.FieldOperation, log.OpExport,
		"members", len(snap.Members),
		"transactions", len(snap.Transactions),
		"leaves", len(snap.Leaves))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

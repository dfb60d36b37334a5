package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/capture"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

type deps struct {
	store          *store.Store
	uploader       *capture.MinioUploader
	wsHandler      http.Handler
	playbackURLTTL time.Duration
}

// registerRoutes wires all HTTP endpoints to the shared mux. The read API
// serves the recruiter dashboard; session mutation happens only through the
// WebSocket orchestrator.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/interview/{id}", d.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("GET /api/sessions/{id}", d.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", d.handleGetTranscript)
	mux.HandleFunc("GET /api/sessions/{id}/recording", d.handleGetRecording)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type sessionResponse struct {
	*store.Session
	TimeLimitSeconds int64 `json:"time_limit_seconds"`
}

func (d deps) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := d.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, sessionResponse{
		Session:          sess,
		TimeLimitSeconds: int64(sess.TimeLimit / time.Second),
	})
}

func (d deps) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := d.store.GetSession(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	msgs, err := d.store.ListMessages(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, map[string]any{"session_id": id, "messages": msgs})
}

func (d deps) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	sess, err := d.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sess.RecordingRef == "" {
		http.Error(w, "no recording", http.StatusNotFound)
		return
	}
	if d.uploader == nil {
		http.Error(w, "recording storage not configured", http.StatusServiceUnavailable)
		return
	}
	url, err := d.uploader.PlaybackURL(r.Context(), sess.RecordingRef, d.playbackURLTTL)
	if err != nil {
		slog.Error("playback url", "session_id", sess.ID, "error", err)
		http.Error(w, "recording unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{
		"url":        url,
		"expires_in": int64(d.playbackURLTTL / time.Second),
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	slog.Error("store read", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode", "error", err)
	}
}

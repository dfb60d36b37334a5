package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/orchestrator"
)

// metadataTimeout bounds the wait for the first metadata frame. A client
// that upgrades and never speaks must not pin a capacity slot.
var metadataTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler runs interview sessions over candidate WebSockets with admission
// control.
type Handler struct {
	deps orchestrator.Deps
	sem  chan struct{}
}

// NewHandler creates the handler with shared collaborators and a
// concurrency limit.
func NewHandler(deps orchestrator.Deps, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		deps: deps,
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// sessionMetadata is the first text frame sent by the candidate's browser.
// Identity comes from the ephemeral identity provider on the page.
type sessionMetadata struct {
	Identity string `json:"identity"`
	Device   string `json:"device,omitempty"`
	Codec    string `json:"codec,omitempty"`
}

// ServeHTTP upgrades the connection and runs the interview session.
// Returns 503 at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	meta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read session metadata", "session_id", sessionID, "error", err)
		return
	}
	if strings.TrimSpace(meta.Identity) == "" {
		slog.Warn("missing candidate identity", "session_id", sessionID)
		return
	}

	metrics.InterviewsActive.Inc()
	metrics.InterviewsTotal.Inc()
	defer metrics.InterviewsActive.Dec()

	slog.Info("interview connection", "session_id", sessionID, "device", meta.Device)
	orchestrator.Run(r.Context(), conn, sessionID, meta.Identity, h.deps)
	slog.Info("interview connection closed", "session_id", sessionID)
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	if err := conn.SetReadDeadline(time.Now().Add(metadataTimeout)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err = conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

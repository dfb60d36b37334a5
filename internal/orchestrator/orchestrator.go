// Package orchestrator drives one candidate's live interview from
// invitation-link access through the real-time conversation to the
// finalized, scored completion record.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/agent"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/capture"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/finalize"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/notify"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/session"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/transcript"
)

// ClientConn is the candidate-side WebSocket surface. *websocket.Conn
// satisfies it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SessionReader loads one session record.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
}

// Deps are the shared collaborators handed to every session.
type Deps struct {
	Gate        *session.Gate
	Machine     *session.Machine
	Sessions    SessionReader
	Transcripts transcript.WriteStore
	Refs        capture.RefStore
	Uploader    capture.Uploader
	AgentDial   agent.DialFunc
	Scorer      finalize.Scorer
	Notifier    notify.Notifier
	// Tick is the governor granularity; defaults to one second.
	Tick time.Duration
}

// clientEvent is one JSON frame sent to the candidate. Candidates only ever
// see two failure classes: "can't access" (terminal) and "connection
// trouble" (recoverable with an explicit retry/end choice).
type clientEvent struct {
	Type             string `json:"type"`
	Text             string `json:"text,omitempty"`
	Code             string `json:"code,omitempty"`
	State            string `json:"state,omitempty"`
	Role             string `json:"role,omitempty"`
	RemainingSeconds *int64 `json:"remaining_seconds,omitempty"`
	Score            *int   `json:"score,omitempty"`
}

// clientCommand is one JSON control frame from the candidate.
type clientCommand struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Session is one running interview.
type Session struct {
	id       string
	identity string
	deps     Deps
	conn     ClientConn
	sendMu   sync.Mutex

	record   *store.Session
	recorder *transcript.Recorder
	capture  *capture.Pipeline
	link     *agent.Link
	reconn   *agent.Reconnector
	governor *session.Governor
	final    *finalize.Pipeline

	cancel context.CancelFunc

	// connTrouble marks an unresolved outage; candidate chat is refused
	// until the link recovers or the candidate ends the session.
	troubleMu   sync.Mutex
	connTrouble bool
}

// Run executes the full session lifecycle on the candidate connection and
// returns when the session is over or the connection is gone. The caller
// owns closing conn.
func Run(ctx context.Context, conn ClientConn, sessionID, identity string, deps Deps) {
	if deps.Tick <= 0 {
		deps.Tick = time.Second
	}
	s := &Session{id: sessionID, identity: identity, deps: deps, conn: conn}
	s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	// Access gate first; nothing else runs without Authorized.
	verdict, err := s.deps.Gate.Authorize(ctx, s.id, s.identity)
	if err != nil {
		slog.Error("authorize failed", "session_id", s.id, "error", err)
		s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
		return
	}
	switch verdict {
	case session.NotFound:
		s.sendEvent(clientEvent{Type: "error", Code: "not_found"})
		return
	case session.NotLinked:
		s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
		return
	}

	record, err := s.deps.Sessions.GetSession(ctx, s.id)
	if err != nil {
		slog.Error("session load failed", "session_id", s.id, "error", err)
		s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
		return
	}
	if record.Status.Terminal() {
		s.sendEvent(clientEvent{Type: "error", Code: "session_closed"})
		return
	}

	// Begin is only valid from pending; "already started" means the
	// candidate reloaded mid-interview and resumes against the original
	// started_at.
	started, err := s.deps.Machine.Begin(ctx, s.id)
	switch {
	case err == nil:
		record = started
	case errors.Is(err, store.ErrInvalidTransition):
		// The loaded snapshot predates whoever started the session; it may
		// still say pending with no started_at. Resume from the committed
		// record, which may even have gone terminal in the meantime.
		slog.Info("session already started, resuming", "session_id", s.id)
		record, err = s.deps.Sessions.GetSession(ctx, s.id)
		if err != nil {
			slog.Error("session reload failed", "session_id", s.id, "error", err)
			s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
			return
		}
		if record.Status.Terminal() {
			s.sendEvent(clientEvent{Type: "error", Code: "session_closed"})
			return
		}
		if record.StartedAt == nil {
			slog.Error("started session missing started_at", "session_id", s.id)
			s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
			return
		}
	default:
		slog.Error("begin failed", "session_id", s.id, "error", err)
		s.sendEvent(clientEvent{Type: "error", Code: "access_denied"})
		return
	}
	s.record = record

	s.recorder = transcript.NewRecorder(s.deps.Transcripts, s.id)
	s.capture = capture.New(s.id, s.deps.Uploader, s.deps.Refs)
	s.link = agent.NewLink(s.deps.AgentDial, s.handleAgentEvent)
	s.reconn = agent.NewReconnector(s.link)
	s.governor = session.StartGovernor(ctx, *record.StartedAt, record.TimeLimit, s.deps.Tick, nil)
	s.final = finalize.New(s.id, s.governor, s.recorder, s.capture, s.deps.Machine, s.deps.Scorer, s.deps.Notifier)

	// Privacy: whatever path exits this function stops the capture buffer.
	defer func() {
		teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer teardownCancel()
		if _, stopErr := s.capture.Stop(teardownCtx); stopErr != nil {
			slog.Warn("capture teardown failed", "session_id", s.id, "error", stopErr)
		}
		s.link.End()
	}()

	s.sendState("in_progress", Remaining(record))

	if err = s.connectAgent(ctx); err != nil {
		// Surfaced as a retryable user action, never auto-retried; the
		// read loop keeps running so the candidate can try again or end.
		s.sendEvent(clientEvent{Type: "error", Code: "connection_trouble"})
	}

	go s.watchExpiry(ctx)
	go s.pushTicks(ctx)

	s.readCandidate(ctx)
}

// connectAgent establishes the live channel and sends the one-shot
// contextual briefing so the agent does not re-ask for details the system
// already knows.
func (s *Session) connectAgent(ctx context.Context) error {
	if err := s.link.Connect(ctx); err != nil {
		return err
	}
	briefing := map[string]any{
		"job_role":          s.record.JobRole,
		"time_limit_secs":   int64(s.record.TimeLimit / time.Second),
		"remaining_secs":    int64(Remaining(s.record) / time.Second),
		"transcript_so_far": len(s.recorder.Log()),
	}
	if err := s.link.SendContext(briefing); err != nil {
		slog.Warn("context briefing failed", "session_id", s.id, "error", err)
	}
	return nil
}

// Remaining derives the session's remaining budget from its record.
func Remaining(rec *store.Session) time.Duration {
	if rec.StartedAt == nil {
		return rec.TimeLimit
	}
	return session.Remaining(time.Now(), *rec.StartedAt, rec.TimeLimit)
}

// watchExpiry finalizes with cause expired when the governor fires.
func (s *Session) watchExpiry(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.governor.Expired():
	}
	s.finish(ctx, store.EndExpired)
}

// pushTicks streams the remaining time to the candidate UI.
func (s *Session) pushTicks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case left, ok := <-s.governor.Ticks():
			if !ok {
				return
			}
			secs := int64(left / time.Second)
			s.sendEvent(clientEvent{Type: "timer", RemainingSeconds: &secs})
		}
	}
}

// readCandidate is the main loop over the candidate socket. Binary frames
// are media chunks: they feed the recording buffer and, while the link is
// up, the agent's audio-in. Text frames are control commands.
func (s *Session) readCandidate(ctx context.Context) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			// Candidate socket gone without an explicit end: leave the
			// session in_progress so a reload can resume it; the stale
			// sweeper expires it if nobody ever comes back.
			slog.Info("candidate connection closed", "session_id", s.id, "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err = s.capture.AddChunk(data); err != nil && !errors.Is(err, capture.ErrStopped) {
				slog.Warn("chunk buffering failed", "session_id", s.id, "error", err)
			}
			if sendErr := s.link.SendAudio(data); sendErr != nil && !errors.Is(sendErr, agent.ErrNotConnected) {
				slog.Warn("audio forward failed", "session_id", s.id, "error", sendErr)
			}
		case websocket.TextMessage:
			var cmd clientCommand
			if err = json.Unmarshal(data, &cmd); err != nil {
				s.sendEvent(clientEvent{Type: "error", Code: "invalid_message"})
				continue
			}
			if done := s.handleCommand(ctx, cmd); done {
				return
			}
		}
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd clientCommand) bool {
	switch cmd.Type {
	case "chat":
		s.handleChat(cmd.Text)
	case "end":
		s.finish(ctx, s.endCause())
		return true
	case "retry":
		go s.recover(ctx)
	default:
		// Unknown commands fail closed.
		s.sendEvent(clientEvent{Type: "error", Code: "invalid_message"})
	}
	return false
}

// endCause distinguishes the candidate ending a healthy session from giving
// up on a dead link.
func (s *Session) endCause() store.EndReason {
	s.troubleMu.Lock()
	defer s.troubleMu.Unlock()
	if s.connTrouble {
		return store.EndAbandoned
	}
	return store.EndUserEnded
}

// handleChat records a fallback-channel message and forwards it to the
// agent. Validation errors go back to the candidate for editing; content is
// never silently truncated. The voice path must not re-record this message,
// so the agent's acknowledgement is administrative only.
func (s *Session) handleChat(text string) {
	msg, err := s.recorder.Record(store.RoleCandidate, text)
	if err != nil {
		s.sendEvent(clientEvent{Type: "error", Code: "invalid_message", Text: err.Error()})
		return
	}
	s.sendEvent(clientEvent{Type: "transcript", Role: string(store.RoleCandidate), Text: msg.Content})

	if err = s.link.SendText(text); err != nil {
		slog.Warn("chat forward failed", "session_id", s.id, "error", err)
	}
}

// handleAgentEvent receives every demultiplexed event from the link's read
// loop. Only content-bearing events reach the transcript.
func (s *Session) handleAgentEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.KindAgentContent:
		s.recordAndForward(store.RoleAgent, ev.Text)
	case agent.KindCandidateContent:
		s.recordAndForward(store.RoleCandidate, ev.Text)
	case agent.KindAgentAudio:
		s.sendBinary(ev.Audio)
	case agent.KindAck:
		// Administrative; nothing to record.
	case agent.KindConnectionChange:
		s.handleConnectionChange(ev)
	}
}

func (s *Session) recordAndForward(role store.Role, text string) {
	msg, err := s.recorder.Record(role, text)
	if err != nil {
		// Agent-produced content failing validation is dropped, not
		// surfaced; the candidate cannot edit it.
		slog.Warn("agent transcript rejected", "session_id", s.id, "role", role, "error", err)
		return
	}
	s.sendEvent(clientEvent{Type: "transcript", Role: string(role), Text: msg.Content})
}

func (s *Session) handleConnectionChange(ev agent.Event) {
	s.sendEvent(clientEvent{Type: "connection", State: ev.State.String()})

	if ev.State != agent.StateDisconnected || !ev.Unintentional {
		return
	}
	s.setTrouble(true)
	if s.record.Status == store.StatusInProgress {
		go s.recover(context.Background())
	}
}

// recover runs the bounded reconnect policy. On success normal operation
// resumes; on exhaustion the candidate gets the terminal choice of retrying
// manually or ending the session as abandoned.
func (s *Session) recover(ctx context.Context) {
	s.sendEvent(clientEvent{Type: "error", Code: "connection_trouble"})

	err := s.reconn.Recover(ctx)
	if err == nil {
		s.setTrouble(false)
		s.sendEvent(clientEvent{Type: "connection", State: agent.StateConnected.String()})
		return
	}
	if errors.Is(err, agent.ErrReconnectExhausted) {
		s.sendEvent(clientEvent{Type: "reconnect_exhausted"})
		return
	}
	slog.Warn("reconnect aborted", "session_id", s.id, "error", err)
}

func (s *Session) setTrouble(v bool) {
	s.troubleMu.Lock()
	s.connTrouble = v
	s.troubleMu.Unlock()
}

// finish runs the finalization pipeline and reports completion to the
// candidate. Safe to reach from the governor, the candidate's end command
// and reconnect abandonment at once.
func (s *Session) finish(ctx context.Context, cause store.EndReason) {
	sess, err := s.final.Run(ctx, cause)
	if err != nil {
		slog.Error("finalization failed", "session_id", s.id, "cause", cause, "error", err)
		s.sendEvent(clientEvent{Type: "error", Code: "connection_trouble"})
		s.cancel()
		return
	}

	// Completion is reported as success even when best-effort steps
	// (recording, scoring, notification) degraded.
	s.sendEvent(clientEvent{Type: "completed", Code: string(sess.EndReason)})
	s.cancel()
	// Unblocks the candidate read loop when finalization came from the
	// governor rather than the socket.
	_ = s.conn.Close()
}

func (s *Session) sendEvent(ev clientEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err = s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("client write failed", "session_id", s.id, "error", err)
	}
}

func (s *Session) sendBinary(data []byte) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Debug("client audio write failed", "session_id", s.id, "error", err)
	}
}

func (s *Session) sendState(state string, remaining time.Duration) {
	secs := int64(remaining / time.Second)
	s.sendEvent(clientEvent{Type: "session_state", State: state, RemainingSeconds: &secs})
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
)

// ErrNotConnected is returned by send operations while the link is down.
var ErrNotConnected = errors.New("agent: link not connected")

// Conn is the minimal WebSocket surface the link needs. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes one connection to the agent service.
type DialFunc func(ctx context.Context) (Conn, error)

// WebSocketDialer returns a DialFunc that dials the agent service endpoint
// for the given agent id with gorilla's default dialer.
func WebSocketDialer(endpoint, agentID string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("agent endpoint: %w", err)
		}
		q := u.Query()
		q.Set("agent_id", agentID)
		u.RawQuery = q.Encode()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Link is the per-session channel to the conversational agent. It owns the
// socket exclusively; every other component goes through Connect, SendText,
// SendContext, SendAudio and End. The one-shot context payload is state of
// this instance, not of the process, so concurrent sessions brief their
// agents independently.
type Link struct {
	dial    DialFunc
	handler Handler

	mu          sync.Mutex
	conn        Conn
	state       ConnState
	intentional bool
	lastContext []byte
	contextSent bool

	// writeMu serializes socket writes; gorilla allows one writer at a time.
	writeMu sync.Mutex
}

// NewLink creates an idle link. handler receives every demultiplexed event,
// including connection changes.
func NewLink(dial DialFunc, handler Handler) *Link {
	return &Link{dial: dial, handler: handler, state: StateIdle}
}

// State returns the current connection state.
func (l *Link) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect establishes the channel and starts the read loop. It does not
// retry on failure; initial-connect retry is a user action, and reconnect
// after a drop belongs to the Reconnector.
func (l *Link) Connect(ctx context.Context) error {
	l.setState(StateConnecting, false)

	conn, err := l.dial(ctx)
	if err != nil {
		l.setState(StateDisconnected, false)
		metrics.Errors.WithLabelValues("agent", "connect").Inc()
		return fmt.Errorf("agent connect: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.state = StateConnected
	l.intentional = false
	l.mu.Unlock()

	l.handler(Event{Kind: KindConnectionChange, State: StateConnected})
	go l.readLoop(conn)
	return nil
}

// SendText sends one fallback-channel message to the agent.
func (l *Link) SendText(content string) error {
	return l.writeJSON(wireMessage{Type: "user_message", Text: content})
}

// SendContext sends the one-shot contextual briefing. The payload is kept
// so a successful reconnect can re-send it and the agent does not re-ask
// for information it already has.
func (l *Link) SendContext(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agent context: %w", err)
	}

	l.mu.Lock()
	l.lastContext = data
	l.mu.Unlock()

	if err = l.writeJSON(wireMessage{Type: "context", Data: data}); err != nil {
		return err
	}

	l.mu.Lock()
	l.contextSent = true
	l.mu.Unlock()
	return nil
}

// resendContext replays the stored briefing after a successful reconnect,
// provided the original send went through.
func (l *Link) resendContext() error {
	l.mu.Lock()
	data := l.lastContext
	sent := l.contextSent
	l.mu.Unlock()
	if !sent || data == nil {
		return nil
	}
	return l.writeJSON(wireMessage{Type: "context", Data: data})
}

// SendAudio forwards one opaque candidate audio frame to the agent.
func (l *Link) SendAudio(chunk []byte) error {
	l.mu.Lock()
	conn := l.conn
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// End closes the link intentionally. The read loop classifies the resulting
// close as caller-initiated, so no reconnect is triggered.
func (l *Link) End() {
	l.mu.Lock()
	l.intentional = true
	conn := l.conn
	alreadyTerminal := l.state == StateTerminated
	l.state = StateTerminated
	l.mu.Unlock()

	if conn != nil {
		_ = l.writeJSONConn(conn, wireMessage{Type: "end_session"})
		_ = conn.Close()
	}
	if !alreadyTerminal {
		l.handler(Event{Kind: KindConnectionChange, State: StateTerminated})
	}
}

func (l *Link) readLoop(conn Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			l.handleDisconnect(conn, err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			l.handler(Event{Kind: KindAgentAudio, Audio: data})
		case websocket.TextMessage:
			ev, ok := demux(data)
			if !ok {
				slog.Debug("unrecognized agent frame dropped", "size", len(data))
				continue
			}
			l.handler(ev)
		}
	}
}

// handleDisconnect classifies a read-loop exit as intentional (caller ended
// the session) or unintentional (remote/network initiated). Only the latter
// is surfaced for reconnection.
func (l *Link) handleDisconnect(conn Conn, err error) {
	l.mu.Lock()
	if l.conn != conn {
		// A reconnect already replaced this socket; stale loop, nothing to report.
		l.mu.Unlock()
		return
	}
	intentional := l.intentional
	l.conn = nil
	if intentional {
		l.state = StateTerminated
	} else {
		l.state = StateDisconnected
	}
	l.mu.Unlock()

	if intentional {
		return
	}

	slog.Warn("agent link lost", "error", err)
	metrics.Errors.WithLabelValues("agent", "disconnect").Inc()
	l.handler(Event{Kind: KindConnectionChange, State: StateDisconnected, Unintentional: true})
}

func (l *Link) writeJSON(msg wireMessage) error {
	l.mu.Lock()
	conn := l.conn
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	return l.writeJSONConn(conn, msg)
}

func (l *Link) writeJSONConn(conn Conn, msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Link) setState(s ConnState, emit bool) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	if emit {
		l.handler(Event{Kind: KindConnectionChange, State: s})
	}
}

// Package agent owns the real-time connection to the external
// conversational-AI agent service: connect, send, inbound event
// demultiplexing, disconnect classification and the bounded reconnect
// policy.
package agent

import "encoding/json"

// ConnState is the transient connection state of the agent link. It is
// never persisted; it drives the candidate UI and the reconnect policy.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EventKind discriminates the inbound event union.
type EventKind int

const (
	// KindAgentContent is text spoken by the agent.
	KindAgentContent EventKind = iota
	// KindCandidateContent is the voice path's transcript of candidate
	// speech. Candidate text sent through the fallback channel is recorded
	// at send time and must never arrive here a second time.
	KindCandidateContent
	// KindAck covers administrative and contextual acknowledgements.
	KindAck
	// KindAgentAudio is an opaque audio frame for playback.
	KindAgentAudio
	// KindConnectionChange reports link state transitions. Unintentional
	// is true only for remote- or network-initiated losses.
	KindConnectionChange
)

// Event is one demultiplexed inbound event.
type Event struct {
	Kind          EventKind
	Text          string
	Audio         []byte
	State         ConnState
	Unintentional bool
}

// Handler receives every demultiplexed event for one session.
type Handler func(Event)

// wireMessage is the agent service's JSON frame shape.
type wireMessage struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// demux maps a wire frame onto the event union. Unknown frame types fail
// closed: they are dropped instead of being misrouted into the transcript.
func demux(data []byte) (Event, bool) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}
	switch msg.Type {
	case "agent_response":
		return Event{Kind: KindAgentContent, Text: msg.Text}, true
	case "user_transcript":
		return Event{Kind: KindCandidateContent, Text: msg.Text}, true
	case "ack", "context_ack", "user_message_ack", "ping":
		return Event{Kind: KindAck, Text: msg.Type}, true
	default:
		return Event{}, false
	}
}

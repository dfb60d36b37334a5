package store

import "time"

// Status is the lifecycle state of an interview session. Transitions are
// monotonic: pending → in_progress → {completed, expired}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition out of s is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// EndReason records what triggered finalization.
type EndReason string

const (
	EndUserEnded EndReason = "user_ended"
	EndExpired   EndReason = "expired"
	EndAbandoned EndReason = "abandoned"
)

// Session is one candidate's interview attempt. TimeLimit is marshaled by
// the read API as whole seconds, not in this struct's JSON form.
type Session struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	JobRole      string        `json:"job_role"`
	TimeLimit    time.Duration `json:"-"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	EndReason    EndReason     `json:"end_reason,omitempty"`
	RecordingRef string        `json:"recording_ref,omitempty"`
	Score        *int          `json:"score,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleAgent     Role = "agent"
	RoleCandidate Role = "candidate"
)

// Message is one append-only transcript entry.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

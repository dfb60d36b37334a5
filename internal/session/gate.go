package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// Verdict is the access gate's answer for one (session, identity) pair.
type Verdict int

const (
	// Authorized means the identity holds the claim on the session.
	Authorized Verdict = iota
	// NotLinked means another identity already claimed the session.
	NotLinked
	// NotFound means no such session exists. No link is created in this
	// case, so nonexistent session ids cannot be probed into existence.
	NotFound
)

// LinkStore is the subset of the record store the access gate needs.
type LinkStore interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetAccessLink(ctx context.Context, sessionID string) (string, error)
	CreateAccessLink(ctx context.Context, identity, sessionID string) error
}

// Gate verifies that the calling ephemeral identity may operate on a
// session. The first identity to touch an existing session claims it; every
// later identity is refused. Nothing else in the orchestrator runs before
// the gate answers Authorized.
type Gate struct {
	store LinkStore
}

// NewGate creates an access gate over the given store.
func NewGate(s LinkStore) *Gate {
	return &Gate{store: s}
}

// Authorize resolves the verdict for identity on sessionID, creating the
// first-touch access link when the session is still unclaimed. A uniqueness
// conflict on link creation is a race with ourselves or with another
// identity; the stored link decides either way.
func (g *Gate) Authorize(ctx context.Context, sessionID, identity string) (Verdict, error) {
	if _, err := g.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound, nil
		}
		return NotFound, fmt.Errorf("load session: %w", err)
	}

	holder, err := g.store.GetAccessLink(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		if err = g.store.CreateAccessLink(ctx, identity, sessionID); err != nil {
			return NotLinked, fmt.Errorf("create access link: %w", err)
		}
		holder, err = g.store.GetAccessLink(ctx, sessionID)
	}
	if err != nil {
		return NotLinked, fmt.Errorf("read access link: %w", err)
	}

	if holder == identity {
		return Authorized, nil
	}
	return NotLinked, nil
}

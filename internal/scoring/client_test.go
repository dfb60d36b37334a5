package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

type fakeTranscripts struct {
	msgs []store.Message
	err  error
}

func (f *fakeTranscripts) ListMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	return f.msgs, f.err
}

type fakeEvals struct {
	score   int
	summary string
	calls   int
	err     error
}

func (f *fakeEvals) SetEvaluation(ctx context.Context, id string, score int, summary string) error {
	f.calls++
	f.score = score
	f.summary = summary
	return f.err
}

type fakeCompleter struct {
	reply string
	err   error
	user  string
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.user = user
	return f.reply, f.err
}

func sampleTranscript() []store.Message {
	now := time.Now()
	return []store.Message{
		{ID: "m1", SessionID: "s1", Role: store.RoleAgent, Content: "Describe a system you scaled.", CreatedAt: now},
		{ID: "m2", SessionID: "s1", Role: store.RoleCandidate, Content: "We sharded the order store.", CreatedAt: now.Add(time.Second)},
	}
}

func TestParseEvaluation(t *testing.T) {
	eval, err := ParseEvaluation(`{"score": 82, "summary": "Strong systems depth."}`)
	require.NoError(t, err)
	assert.Equal(t, 82, eval.Score)
	assert.Equal(t, "Strong systems depth.", eval.Summary)
}

func TestParseEvaluationTolerantOfFences(t *testing.T) {
	eval, err := ParseEvaluation("Here you go:\n```json\n{\"score\": 55, \"summary\": \"Mixed.\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, 55, eval.Score)
}

func TestParseEvaluationRejectsBadOutput(t *testing.T) {
	_, err := ParseEvaluation("I cannot evaluate this transcript.")
	assert.Error(t, err)

	_, err = ParseEvaluation(`{"score": 250, "summary": "x"}`)
	assert.Error(t, err)

	_, err = ParseEvaluation(`{"score": "high"}`)
	assert.Error(t, err)
}

func TestEvaluateCommitsScore(t *testing.T) {
	completer := &fakeCompleter{reply: `{"score": 74, "summary": "Solid but shallow on tradeoffs."}`}
	evals := &fakeEvals{}
	c := NewClient(completer, &fakeTranscripts{msgs: sampleTranscript()}, evals)

	require.NoError(t, c.Evaluate(context.Background(), "s1", "Backend Engineer"))
	assert.Equal(t, 1, evals.calls)
	assert.Equal(t, 74, evals.score)
	assert.Equal(t, "Solid but shallow on tradeoffs.", evals.summary)

	// the prompt labels both speakers and names the role
	assert.Contains(t, completer.user, "Role: Backend Engineer")
	assert.Contains(t, completer.user, "Interviewer: Describe a system you scaled.")
	assert.Contains(t, completer.user, "Candidate: We sharded the order store.")
}

func TestEvaluateSkipsEmptyTranscript(t *testing.T) {
	completer := &fakeCompleter{}
	evals := &fakeEvals{}
	c := NewClient(completer, &fakeTranscripts{}, evals)

	require.NoError(t, c.Evaluate(context.Background(), "s1", "SRE"))
	assert.Zero(t, completer.calls)
	assert.Zero(t, evals.calls)
}

func TestEvaluateSurfacesModelFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("rate limited")}
	evals := &fakeEvals{}
	c := NewClient(completer, &fakeTranscripts{msgs: sampleTranscript()}, evals)

	assert.Error(t, c.Evaluate(context.Background(), "s1", "SRE"))
	assert.Zero(t, evals.calls)
}

func TestEvaluateSurfacesUnparseableReply(t *testing.T) {
	completer := &fakeCompleter{reply: "the candidate did fine I suppose"}
	evals := &fakeEvals{}
	c := NewClient(completer, &fakeTranscripts{msgs: sampleTranscript()}, evals)

	assert.Error(t, c.Evaluate(context.Background(), "s1", "SRE"))
	assert.Zero(t, evals.calls)
}

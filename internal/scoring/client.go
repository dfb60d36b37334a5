// Package scoring turns a finished interview transcript into a structured
// score and narrative summary. It is invoked fire-and-forget after the
// terminal commit; failures here never alter the committed session.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

const systemPrompt = `You are an experienced technical recruiter reviewing the transcript of an AI-conducted job interview.
Evaluate the candidate's answers for the given role. Respond with strict JSON only, in the form
{"score": <integer 0-100>, "summary": "<3-5 sentence narrative assessment>"} and nothing else.`

// TranscriptStore reads the durable transcript for evaluation.
type TranscriptStore interface {
	ListMessages(ctx context.Context, sessionID string) ([]store.Message, error)
}

// EvalStore commits the evaluation onto a completed session.
type EvalStore interface {
	SetEvaluation(ctx context.Context, id string, score int, summary string) error
}

// Completer produces one chat completion. Satisfied by the OpenAI client;
// tests substitute a fake.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIConfig holds the scoring model settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAICompleter calls the OpenAI chat completions API.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates the API-backed completer.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: cfg.Model}
}

// Complete sends one system+user exchange and returns the model text.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Evaluation is the structured scoring result.
type Evaluation struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Client scores one session's transcript and commits the result.
type Client struct {
	completer   Completer
	transcripts TranscriptStore
	evals       EvalStore
}

// NewClient creates a scoring client.
func NewClient(completer Completer, transcripts TranscriptStore, evals EvalStore) *Client {
	return &Client{completer: completer, transcripts: transcripts, evals: evals}
}

// Evaluate loads the durable transcript, asks the model for an evaluation
// and commits score and summary. An empty transcript is skipped; an unscored
// completed session is a valid terminal state.
func (c *Client) Evaluate(ctx context.Context, sessionID, jobRole string) error {
	msgs, err := c.transcripts.ListMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("scoring transcript load: %w", err)
	}
	if len(msgs) == 0 {
		slog.Info("empty transcript, skipping scoring", "session_id", sessionID)
		return nil
	}

	text, err := c.completer.Complete(ctx, systemPrompt, formatTranscript(jobRole, msgs))
	if err != nil {
		metrics.Errors.WithLabelValues("scoring", "llm").Inc()
		return fmt.Errorf("scoring: %w", err)
	}

	eval, err := ParseEvaluation(text)
	if err != nil {
		metrics.Errors.WithLabelValues("scoring", "parse").Inc()
		return fmt.Errorf("scoring: %w", err)
	}

	if err = c.evals.SetEvaluation(ctx, sessionID, eval.Score, eval.Summary); err != nil {
		return fmt.Errorf("scoring commit: %w", err)
	}
	slog.Info("session scored", "session_id", sessionID, "score", eval.Score)
	return nil
}

func formatTranscript(jobRole string, msgs []store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n\nTranscript:\n", jobRole)
	for _, m := range msgs {
		speaker := "Candidate"
		if m.Role == store.RoleAgent {
			speaker = "Interviewer"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}

// ParseEvaluation extracts the JSON evaluation from model output, tolerating
// surrounding prose or code fences.
func ParseEvaluation(text string) (Evaluation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Evaluation{}, fmt.Errorf("no JSON object in %q", truncate(text, 120))
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(text[start:end+1]), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation: %w", err)
	}
	if eval.Score < 0 || eval.Score > 100 {
		return Evaluation{}, fmt.Errorf("score %d out of range", eval.Score)
	}
	return eval, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

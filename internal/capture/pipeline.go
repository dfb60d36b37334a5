// Package capture buffers the candidate's chunked media recording and
// uploads it to blob storage when the session ends.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
)

// maxRecordingBytes bounds the in-memory recording buffer. Chunks past the
// cap are dropped; a truncated recording beats an unbounded buffer.
const maxRecordingBytes = 512 << 20

// ErrStopped is returned when a chunk arrives after the pipeline stopped.
// The recorder must not keep capturing once the session has ended.
var ErrStopped = errors.New("capture: pipeline stopped")

// Uploader pushes one assembled recording to blob storage and returns its
// stable reference.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, data []byte) (ref string, err error)
}

// RefStore commits the recording reference on the session record.
type RefStore interface {
	SetRecordingRef(ctx context.Context, id, ref string) error
}

// Pipeline collects ~1s media chunks for one session and, on Stop,
// assembles and uploads them. A Pipeline exists only while the session is
// in progress and is torn down on every exit path.
type Pipeline struct {
	sessionID string
	uploader  Uploader
	refs      RefStore

	mu      sync.Mutex
	chunks  [][]byte
	total   int
	dropped bool
	stopped bool
}

// New creates a capture pipeline for one session.
func New(sessionID string, uploader Uploader, refs RefStore) *Pipeline {
	return &Pipeline{sessionID: sessionID, uploader: uploader, refs: refs}
}

// AddChunk buffers one media chunk. Chunks arriving after Stop are refused.
func (p *Pipeline) AddChunk(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.total+len(chunk) > maxRecordingBytes {
		if !p.dropped {
			p.dropped = true
			slog.Warn("recording buffer full, dropping further chunks",
				"session_id", p.sessionID, "buffered_bytes", p.total)
		}
		return nil
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	p.chunks = append(p.chunks, buf)
	p.total += len(buf)
	metrics.RecordingChunks.Inc()
	return nil
}

// Stop ends capture, assembles the buffered chunks and uploads them. An
// empty buffer is a valid "no recording" outcome (for example, camera
// denied) and so is a failed upload: both return ref == "" with no error,
// because finalization must proceed regardless. Only a successful upload
// commits the recording reference. Stop is idempotent; later calls are
// no-ops.
func (p *Pipeline) Stop(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", nil
	}
	p.stopped = true
	chunks := p.chunks
	total := p.total
	p.chunks = nil
	p.mu.Unlock()

	if total == 0 {
		slog.Info("no recording captured", "session_id", p.sessionID)
		return "", nil
	}
	if p.uploader == nil {
		slog.Info("no recording storage configured, discarding buffer",
			"session_id", p.sessionID, "bytes", total)
		return "", nil
	}

	data := make([]byte, 0, total)
	for _, c := range chunks {
		data = append(data, c...)
	}

	ref, err := p.uploader.Upload(ctx, p.sessionID, data)
	if err != nil {
		metrics.RecordingUploadFailures.Inc()
		slog.Warn("recording upload failed, continuing without recording",
			"session_id", p.sessionID, "bytes", total, "error", err)
		return "", nil
	}
	metrics.RecordingUploadBytes.Add(float64(total))

	if err = p.refs.SetRecordingRef(ctx, p.sessionID, ref); err != nil {
		slog.Warn("recording ref commit failed", "session_id", p.sessionID, "ref", ref, "error", err)
		return "", nil
	}

	slog.Info("recording uploaded", "session_id", p.sessionID, "ref", ref, "bytes", total)
	return ref, nil
}

// BufferedBytes reports the current buffer size.
func (p *Pipeline) BufferedBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

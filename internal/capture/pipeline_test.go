package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	err error

	mu    sync.Mutex
	calls int
	data  []byte
}

func (u *fakeUploader) Upload(ctx context.Context, sessionID string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	u.data = append([]byte(nil), data...)
	return "recordings/" + sessionID + "/rec.webm", nil
}

type fakeRefs struct {
	err error

	mu   sync.Mutex
	refs map[string]string
}

func (r *fakeRefs) SetRecordingRef(ctx context.Context, id, ref string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == nil {
		r.refs = make(map[string]string)
	}
	r.refs[id] = ref
	return nil
}

func TestStopAssemblesChunksInOrder(t *testing.T) {
	up := &fakeUploader{}
	refs := &fakeRefs{}
	p := New("s1", up, refs)

	require.NoError(t, p.AddChunk([]byte("part-a ")))
	require.NoError(t, p.AddChunk([]byte("part-b ")))
	require.NoError(t, p.AddChunk([]byte("part-c")))
	assert.Equal(t, len("part-a part-b part-c"), p.BufferedBytes())

	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recordings/s1/rec.webm", ref)
	assert.Equal(t, []byte("part-a part-b part-c"), up.data)
	assert.Equal(t, ref, refs.refs["s1"])
}

func TestAddChunkCopiesCallerBuffer(t *testing.T) {
	up := &fakeUploader{}
	p := New("s1", up, &fakeRefs{})

	buf := []byte("original")
	require.NoError(t, p.AddChunk(buf))
	copy(buf, "mutated!")

	_, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), up.data)
}

func TestEmptyBufferMeansNoRecording(t *testing.T) {
	up := &fakeUploader{}
	p := New("s1", up, &fakeRefs{})

	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Zero(t, up.calls)
}

func TestUploadFailureDoesNotFailStop(t *testing.T) {
	up := &fakeUploader{err: errors.New("bucket unavailable")}
	refs := &fakeRefs{}
	p := New("s1", up, refs)

	require.NoError(t, p.AddChunk([]byte("chunk")))
	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Empty(t, refs.refs)
}

func TestRefCommitFailureDoesNotFailStop(t *testing.T) {
	p := New("s1", &fakeUploader{}, &fakeRefs{err: errors.New("connection reset")})

	require.NoError(t, p.AddChunk([]byte("chunk")))
	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestNilUploaderDiscardsBuffer(t *testing.T) {
	p := New("s1", nil, nil)
	require.NoError(t, p.AddChunk([]byte("chunk")))

	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestChunksAfterStopAreRefused(t *testing.T) {
	up := &fakeUploader{}
	p := New("s1", up, &fakeRefs{})

	require.NoError(t, p.AddChunk([]byte("chunk")))
	_, err := p.Stop(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, p.AddChunk([]byte("late")), ErrStopped)
}

func TestStopIsIdempotent(t *testing.T) {
	up := &fakeUploader{}
	p := New("s1", up, &fakeRefs{})

	require.NoError(t, p.AddChunk([]byte("chunk")))
	_, err := p.Stop(context.Background())
	require.NoError(t, err)

	ref, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Equal(t, 1, up.calls)
}

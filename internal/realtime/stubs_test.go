package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"notification-hub/internal/models"
)

var errStubClosed = errors.New("stub transport closed")

// stubTransport records frames; once closed every Send fails.
type stubTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	attempts atomic.Int32
	delay    time.Duration
}

func (s *stubTransport) Send(_ context.Context, data []byte) error {
	s.attempts.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStubClosed
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTransport) received() []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		var env models.Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (s *stubTransport) titles() []string {
	var out []string
	for _, env := range s.received() {
		var body struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(env.Payload, &body)
		out = append(out, body.Title)
	}
	return out
}

// hangingTransport never completes a Send on its own and ignores ctx.
type hangingTransport struct {
	release   chan struct{}
	closeOnce sync.Once
}

func newHangingTransport() *hangingTransport {
	return &hangingTransport{release: make(chan struct{})}
}

func (h *hangingTransport) Send(context.Context, []byte) error {
	<-h.release
	return errStubClosed
}

func (h *hangingTransport) Close() error {
	h.closeOnce.Do(func() { close(h.release) })
	return nil
}

// pipeConn is an in-memory realtime.Conn for dispatcher loops.
type pipeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-p.closed:
		return nil, errStubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-p.closed:
		return errStubClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return errStubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) next(t *testing.T) models.Envelope {
	t.Helper()
	select {
	case frame := <-p.out:
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return models.Envelope{}
	}
}

func newTestRegistry() *Registry {
	return NewRegistry(clockwork.NewRealClock(), zerolog.Nop())
}

func titled(t *testing.T, title string) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(models.MessageNotification, map[string]string{"title": title}, time.Now())
	require.NoError(t, err)
	return env
}

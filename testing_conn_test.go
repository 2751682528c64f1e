package chatsdk

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConnection struct {
	mock.Mock

	params OpenConnectionParams
	recv   chan<- Frame

	mu       sync.Mutex
	written  []Frame
	writeErr error

	closeC    CloseChan
	closeOnce sync.Once
	closeErr  error
	closes    int
}

func newMockConnection(params OpenConnectionParams, recv chan<- Frame) *mockConnection {
	return &mockConnection{
		params: params,
		recv:   recv,
		closeC: make(CloseChan),
	}
}

func (m *mockConnection) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockConnection) Write(_ context.Context, f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, f)
	return nil
}

func (m *mockConnection) Close() {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()

	m.closeOnce.Do(func() {
		m.mu.Lock()
		if m.closeErr == nil {
			m.closeErr = ErrTerminated
		}
		m.mu.Unlock()
		close(m.closeC)
	})
}

func (m *mockConnection) CloseErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeErr
}

func (m *mockConnection) CloseChan() CloseChan { return m.closeC }

// dropTransport simulates the peer going away.
func (m *mockConnection) dropTransport(reason error) {
	m.mu.Lock()
	m.closeErr = reason
	m.mu.Unlock()
	m.Close()
}

func (m *mockConnection) deliver(t *testing.T, f Frame) {
	t.Helper()
	select {
	case m.recv <- f:
	case <-time.After(time.Second):
		t.Fatal("receive loop did not consume frame")
	}
}

func (m *mockConnection) deliverJSON(t *testing.T, v any) {
	t.Helper()
	bts, err := json.Marshal(v)
	require.NoError(t, err)
	m.deliver(t, NewTextFrame(bts))
}

func (m *mockConnection) setWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeErr = err
}

func (m *mockConnection) frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Frame, len(m.written))
	copy(out, m.written)
	return out
}

func (m *mockConnection) envelopes(t *testing.T) []Envelope {
	t.Helper()

	envs, err := m.decodeEnvelopes()
	require.NoError(t, err)
	return envs
}

// decodeEnvelopes is safe to call off the test goroutine, e.g. from an
// Eventually condition.
func (m *mockConnection) decodeEnvelopes() ([]Envelope, error) {
	var out []Envelope
	for _, f := range m.frames() {
		if !f.Type.IsText() {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(f.Data, &env); err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (m *mockConnection) lastEnvelope(t *testing.T) Envelope {
	t.Helper()

	envs := m.envelopes(t)
	require.NotEmpty(t, envs)
	return envs[len(envs)-1]
}

// connRecorder is a ConnectionFactory handing out mock connections.
type connRecorder struct {
	mu      sync.Mutex
	conns   []*mockConnection
	openErr error
}

func (r *connRecorder) factory(params OpenConnectionParams, recv chan<- Frame) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := newMockConnection(params, recv)
	c.On("Open", mock.Anything).Return(r.openErr)
	r.conns = append(r.conns, c)
	return c
}

func (r *connRecorder) last(t *testing.T) *mockConnection {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.NotEmpty(t, r.conns)
	return r.conns[len(r.conns)-1]
}

func newTestSocket(t *testing.T, opts ...Option) (*SocketClient, *connRecorder) {
	t.Helper()

	rec := &connRecorder{}
	opts = append([]Option{
		WithLogger(NewNopLogger()),
		WithConnectionFactory(rec.factory),
	}, opts...)

	c := NewSocketClient("ws://localhost:4000/socket/websocket", opts...)
	t.Cleanup(c.Disconnect)

	return c, rec
}

func connectTestSocket(t *testing.T, opts ...Option) (*SocketClient, *mockConnection) {
	t.Helper()

	c, rec := newTestSocket(t, opts...)
	require.NoError(t, c.Connect(context.Background(), "secret"))
	return c, rec.last(t)
}

func waitPayload(t *testing.T, ch <-chan Payload) Payload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
		return nil
	}
}

package serialport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type readStep struct {
	data string
	err  error
}

// mockPort 按步骤返回读结果，步骤用完后模拟读超时
type mockPort struct {
	mu      sync.Mutex
	steps   []readStep
	written bytes.Buffer
	resets  int
	closed  bool
	// writeErrs 依次作为 Write 的错误返回
	writeErrs []error
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if len(m.steps) == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	s := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()
	n := copy(p, s.data)
	return n, s.err
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		return 0, err
	}
	return m.written.Write(p)
}

func (m *mockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPump_ToleratesTransientErrors(t *testing.T) {
	port := &mockPort{steps: []readStep{
		{data: "+EVT:01"},
		{err: syscall.EINTR},
		{},
		{err: syscall.EAGAIN},
		{data: "02\r\n"},
	}}
	link := NewLink(port, "/dev/ttyTEST", zaptest.NewLogger(t))
	sink := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Pump(ctx, sink) }()

	require.Eventually(t, func() bool { return sink.String() == "+EVT:0102\r\n" }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestPump_FatalErrorStops(t *testing.T) {
	boom := errors.New("device unplugged")
	port := &mockPort{steps: []readStep{{data: "OK\r\n"}, {err: boom}}}
	link := NewLink(port, "/dev/ttyTEST", zaptest.NewLogger(t))
	sink := &syncBuffer{}

	err := link.Pump(context.Background(), sink)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "OK\r\n", sink.String())
}

func TestPump_StopsOnClose(t *testing.T) {
	port := &mockPort{}
	link := NewLink(port, "/dev/ttyTEST", zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- link.Pump(context.Background(), &syncBuffer{}) }()
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after close")
	}
	assert.True(t, port.closed)
}

func TestWrite_RetriesTransient(t *testing.T) {
	port := &mockPort{writeErrs: []error{syscall.EAGAIN}}
	link := NewLink(port, "/dev/ttyTEST", zaptest.NewLogger(t))

	n, err := link.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "AT\r\n", port.written.String())
}

func TestFlush(t *testing.T) {
	port := &mockPort{}
	link := NewLink(port, "/dev/ttyTEST", zaptest.NewLogger(t))
	require.NoError(t, link.Flush())
	assert.Equal(t, 1, port.resets)
}

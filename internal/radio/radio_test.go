package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"go.uber.org/zap/zaptest"
)

// fakeModem 内存中的 RUI3 模组：Set 命令写入参数表，Get 命令按参数表回复
type fakeModem struct {
	mu      sync.Mutex
	sent    []string
	retried []string
	params  map[string]string
	failOn  map[string]error
	urcs    []string
}

func newFakeModem() *fakeModem {
	return &fakeModem{params: map[string]string{}, failOn: map[string]error{}}
}

func (f *fakeModem) SendCommand(_ context.Context, c rui3.Command) (rui3.Reply, error) {
	return f.exec(c, false)
}

func (f *fakeModem) SendCommandRetrying(_ context.Context, c rui3.Command) (rui3.Reply, error) {
	return f.exec(c, true)
}

func (f *fakeModem) exec(c rui3.Command, retrying bool) (rui3.Reply, error) {
	text, err := c.Encode()
	if err != nil {
		return rui3.Reply{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if retrying {
		f.retried = append(f.retried, text)
	}
	if e := f.failOn[text]; e != nil {
		return rui3.Reply{}, e
	}
	d := c.Descriptor()
	if d.Query {
		return rui3.DecodeReply(c, []string{"AT" + d.Mnemonic + "=" + f.params[d.Mnemonic]})
	}
	if len(c.Args) == 1 {
		f.params[d.Mnemonic] = c.Args[0]
	}
	return rui3.Reply{Kind: c.Kind}, nil
}

func (f *fakeModem) TryTakeNotification() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urcs) == 0 {
		return "", false
	}
	line := f.urcs[0]
	f.urcs = f.urcs[1:]
	return line, true
}

func (f *fakeModem) push(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urcs = append(f.urcs, lines...)
}

func (f *fakeModem) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeModem) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.retried = nil
}

func newTestRadio(t *testing.T, rev rui3.Revision) (*Radio, *fakeModem) {
	t.Helper()
	m := newFakeModem()
	r := New(m, m, Options{Revision: rev, PollInterval: 2 * time.Millisecond}, zaptest.NewLogger(t), nil)
	return r, m
}

var errLink = &rui3.TransportError{Op: "AT+PSEND", Err: errors.New("reply timeout")}

func TestSend_IssuesThreeOrderedCommands(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)

	require.NoError(t, r.Send(context.Background(), []byte{0x01, 0x02}))
	assert.Equal(t, []string{"AT+PRECV=0", "AT+PSEND=0102", "AT+PRECV=65535"}, m.commands())
	// 只有发送步骤走重发通道
	assert.Equal(t, []string{"AT+PSEND=0102"}, m.retried)
}

func TestSend_FailFast(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		want   []string
	}{
		{"发送失败不再恢复接收", "AT+PSEND=0102", []string{"AT+PRECV=0", "AT+PSEND=0102"}},
		{"关闭接收失败不发送", "AT+PRECV=0", []string{"AT+PRECV=0"}},
		{"恢复接收失败", "AT+PRECV=65535", []string{"AT+PRECV=0", "AT+PSEND=0102", "AT+PRECV=65535"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestRadio(t, rui3.RevisionCurrent)
			m.failOn[tt.failOn] = errLink

			err := r.Send(context.Background(), []byte{0x01, 0x02})
			require.Error(t, err)
			assert.ErrorIs(t, err, rui3.ErrTransport)
			assert.Equal(t, tt.want, m.commands())
		})
	}
}

func TestSend_RejectsBadPayload(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)

	assert.ErrorIs(t, r.Send(context.Background(), nil), rui3.ErrInvalidArgument)
	assert.ErrorIs(t, r.Send(context.Background(), make([]byte, rui3.MaxPayloadLen+1)), rui3.ErrInvalidArgument)
	assert.Empty(t, m.commands())

	require.NoError(t, r.Send(context.Background(), make([]byte, rui3.MaxPayloadLen)))
}

func TestPoll(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionLegacy)

	data, ok := r.Poll()
	assert.False(t, ok)
	assert.Nil(t, data)

	m.push("+EVT:RXP2P, RSSI -42, SNR 7", "+EVT:48656C6C6F", "garbage", "+EVT:RXP2P:-80:3:0A0B")

	_, ok = r.Poll()
	assert.False(t, ok)
	sig := r.Signal()
	assert.Equal(t, int16(-42), sig.RSSI)
	assert.Equal(t, int16(7), sig.SNR)
	assert.False(t, sig.UpdatedAt.IsZero())

	data, ok = r.Poll()
	require.True(t, ok)
	assert.Equal(t, []byte("Hello"), data)

	_, ok = r.Poll()
	assert.False(t, ok, "无法解析的行被丢弃")

	data, ok = r.Poll()
	require.True(t, ok)
	assert.Equal(t, []byte{0x0a, 0x0b}, data)
	assert.Equal(t, int16(-80), r.Signal().RSSI)
}

func TestReceive(t *testing.T) {
	t.Run("已有数据立即返回", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		m.push("+EVT:RXP2P, RSSI -60, SNR 5", "+EVT:0102")

		data, err := r.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, data)
		assert.Equal(t, []string{"AT+PRECV=65535"}, m.commands())
		assert.Equal(t, int16(-60), r.Signal().RSSI)
	})

	t.Run("阻塞到数据到达", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		go func() {
			time.Sleep(30 * time.Millisecond)
			m.push("+EVT:RXP2P, RSSI -1, SNR 1")
			m.push("+EVT:AABB")
		}()

		data, err := r.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{0xaa, 0xbb}, data)
	})

	t.Run("无数据时不提前返回空", func(t *testing.T) {
		r, _ := newTestRadio(t, rui3.RevisionCurrent)
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()

		data, err := r.Receive(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, data)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("打开接收失败", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		m.failOn["AT+PRECV=65535"] = errLink
		_, err := r.Receive(context.Background())
		assert.ErrorIs(t, err, rui3.ErrTransport)
	})
}

func TestReceiveWindow(t *testing.T) {
	t.Run("毫秒窗口超时返回空", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		start := time.Now()
		data, err := r.ReceiveWindow(context.Background(), rui3.Milliseconds(50))
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, []string{"AT+PRECV=50"}, m.commands())
	})

	t.Run("毫秒窗口内收到数据", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		go func() {
			time.Sleep(10 * time.Millisecond)
			m.push("+EVT:0102")
		}()
		data, err := r.ReceiveWindow(context.Background(), rui3.Milliseconds(2000))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, data)
	})

	t.Run("毫秒窗口外部取消", func(t *testing.T) {
		r, _ := newTestRadio(t, rui3.RevisionCurrent)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := r.ReceiveWindow(ctx, rui3.Milliseconds(5000))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("单包窗口", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		m.push("+EVT:RXP2P, RSSI -3, SNR 2", "+EVT:0A", "+EVT:0B")
		data, err := r.ReceiveWindow(context.Background(), rui3.OnePacket)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x0a}, data)
		assert.Equal(t, []string{"AT+PRECV=65534"}, m.commands())

		// 第二包留在队列中
		next, ok := r.Poll()
		require.True(t, ok)
		assert.Equal(t, []byte{0x0b}, next)
	})

	t.Run("持续窗口", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		m.push("+EVT:FF")
		data, err := r.ReceiveWindow(context.Background(), rui3.Continuous)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff}, data)
		assert.Equal(t, []string{"AT+PRECV=65535"}, m.commands())
	})

	t.Run("停止窗口", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		m.push("+EVT:FF")
		data, err := r.ReceiveWindow(context.Background(), rui3.Stop)
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Equal(t, []string{"AT+PRECV=0"}, m.commands())
	})

	t.Run("非法窗口", func(t *testing.T) {
		r, m := newTestRadio(t, rui3.RevisionCurrent)
		_, err := r.ReceiveWindow(context.Background(), rui3.Milliseconds(0))
		assert.ErrorIs(t, err, rui3.ErrInvalidArgument)
		assert.Empty(t, m.commands())
	})
}

func TestSignalConcurrentRead(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	for i := 0; i < 50; i++ {
		m.push("+EVT:RXP2P:-10:1")
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = r.Signal()
		}
	}()
	for i := 0; i < 50; i++ {
		r.Poll()
	}
	wg.Wait()
	assert.Equal(t, int16(-10), r.Signal().RSSI)
}

func TestPollPacket(t *testing.T) {
	var seen []Packet
	m := newFakeModem()
	r := New(m, m, Options{Revision: rui3.RevisionCurrent, OnPacket: func(p Packet) { seen = append(seen, p) }}, zaptest.NewLogger(t), nil)

	m.push("+EVT:RXP2P:-70:4:0A0B", "+EVT:RXP2P, RSSI -55, SNR 9", "+EVT:0C")

	p, ok := r.PollPacket()
	require.True(t, ok)
	assert.Equal(t, rui3.EventPeerMessage, p.Kind)
	assert.Equal(t, []byte{0x0a, 0x0b}, p.Data)
	assert.True(t, p.HasSignal)
	assert.Equal(t, int16(-70), p.RSSI)

	_, ok = r.PollPacket()
	assert.False(t, ok)

	p, ok = r.PollPacket()
	require.True(t, ok)
	assert.Equal(t, rui3.EventPeerData, p.Kind)
	assert.True(t, p.HasSignal, "沿用刚收到的信号报告")
	assert.Equal(t, int16(-55), p.RSSI)
	assert.Equal(t, int16(9), p.SNR)
	assert.False(t, p.ReceivedAt.IsZero())

	require.Len(t, seen, 2)
	assert.Equal(t, []byte{0x0c}, seen[1].Data)
}

func TestPollPacket_StaleSignalNotAttached(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionLegacy)
	m.push("+EVT:0102")
	p, ok := r.PollPacket()
	require.True(t, ok)
	assert.False(t, p.HasSignal)
}

func TestStartListening(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	require.NoError(t, r.StartListening(context.Background()))
	assert.Equal(t, []string{"AT+PRECV=65535"}, m.commands())

	m.failOn["AT+PRECV=65535"] = errLink
	assert.ErrorIs(t, r.StartListening(context.Background()), rui3.ErrTransport)
}

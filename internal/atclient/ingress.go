package atclient

import (
	"bytes"
	"strings"
	"sync"

	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"go.uber.org/zap"
)

// Response 一次命令的完整回复：结束码之前的所有行 + 结束码
type Response struct {
	Lines []string
	Code  string
}

// OK 结束码是否为 OK
func (r Response) OK() bool { return r.Code == rui3.CodeOK }

// Queues 调用方持有的有界队列，由 Ingress 写入、Client 读取
type Queues struct {
	Responses     chan Response
	Notifications chan string
}

// NewQueues 创建队列；容量小于 1 时按 1 处理
func NewQueues(responseCap, notificationCap int) *Queues {
	if responseCap < 1 {
		responseCap = 1
	}
	if notificationCap < 1 {
		notificationCap = 1
	}
	return &Queues{
		Responses:     make(chan Response, responseCap),
		Notifications: make(chan string, notificationCap),
	}
}

// maxLineLen 单行上限，超出后丢弃当前未完成的行
const maxLineLen = 1024

// Ingress 串口入站字节分帧：按 CRLF 切行，+EVT 行进入通知队列，
// 其余行累积到结束码后作为一次回复投递。实现 io.Writer，供读循环写入。
type Ingress struct {
	q       *Queues
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	mu      sync.Mutex
	partial bytes.Buffer
	pending []string
}

// NewIngress 创建分帧器
func NewIngress(q *Queues, logger *zap.Logger, m *metrics.AppMetrics) *Ingress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingress{q: q, logger: logger, metrics: m}
}

// Write 接收任意切分的字节块；从不返回错误
func (in *Ingress) Write(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.metrics != nil {
		in.metrics.SerialBytesReceived.Add(float64(len(p)))
	}
	for _, b := range p {
		switch b {
		case '\n', '\r':
			in.flushLine()
		default:
			if in.partial.Len() >= maxLineLen {
				in.logger.Warn("ingress line too long, discarding", zap.Int("len", in.partial.Len()))
				in.partial.Reset()
			}
			in.partial.WriteByte(b)
		}
	}
	return len(p), nil
}

// Reset 丢弃未完成的行和未结束的回复
func (in *Ingress) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.partial.Reset()
	in.pending = nil
}

func (in *Ingress) flushLine() {
	line := strings.TrimSpace(in.partial.String())
	in.partial.Reset()
	if line == "" {
		return
	}

	if rui3.IsNotification(line) {
		in.logger.Debug("rx notification", zap.String("line", line))
		in.pushNotification(line)
		return
	}

	in.logger.Debug("rx line", zap.String("line", line))
	if rui3.IsFinalCode(line) {
		resp := Response{Lines: in.pending, Code: line}
		in.pending = nil
		in.pushResponse(resp)
		return
	}
	in.pending = append(in.pending, line)
}

// pushNotification 队列满时丢弃最旧的一条
func (in *Ingress) pushNotification(line string) {
	for {
		select {
		case in.q.Notifications <- line:
			return
		default:
		}
		select {
		case old := <-in.q.Notifications:
			in.logger.Warn("notification queue full, dropping oldest", zap.String("line", old))
			if in.metrics != nil {
				in.metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			}
		default:
		}
	}
}

// pushResponse 无人等待的旧回复会被新回复挤掉
func (in *Ingress) pushResponse(resp Response) {
	for {
		select {
		case in.q.Responses <- resp:
			return
		default:
		}
		select {
		case old := <-in.q.Responses:
			in.logger.Warn("response queue full, dropping stale reply", zap.String("code", old.Code))
		default:
		}
	}
}

package thirdparty

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 推送相关指标；nil 接收者上的方法为空操作
type Metrics struct {
	PushTotal    *prometheus.CounterVec   // labels: event_type, result=success|failed|retry|dlq
	PushDuration *prometheus.HistogramVec // labels: event_type
	QueueSize    *prometheus.GaugeVec     // labels: queue=main|dlq
	DedupHits    prometheus.Counter
}

// NewMetrics 注册到给定 registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rui3_webhook_push_total",
			Help: "Webhook event deliveries by event type and result.",
		}, []string{"event_type", "result"}),
		PushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rui3_webhook_push_duration_seconds",
			Help:    "Webhook delivery latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"}),
		QueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rui3_webhook_queue_size",
			Help: "Webhook events waiting for delivery.",
		}, []string{"queue"}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rui3_dedup_hits_total",
			Help: "Received packets dropped as peer retransmissions.",
		}),
	}
	reg.MustRegister(m.PushTotal, m.PushDuration, m.QueueSize, m.DedupHits)
	return m
}

func (m *Metrics) recordPush(t EventType, result string) {
	if m != nil {
		m.PushTotal.WithLabelValues(string(t), result).Inc()
	}
}

func (m *Metrics) observeDuration(t EventType, seconds float64) {
	if m != nil {
		m.PushDuration.WithLabelValues(string(t)).Observe(seconds)
	}
}

func (m *Metrics) setQueueSize(queue string, n int64) {
	if m != nil {
		m.QueueSize.WithLabelValues(queue).Set(float64(n))
	}
}

// RecordDedupHit 记录一次去重命中
func (m *Metrics) RecordDedupHit() {
	if m != nil {
		m.DedupHits.Inc()
	}
}

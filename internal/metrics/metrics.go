package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 射频网关业务指标
type AppMetrics struct {
	SerialBytesReceived prometheus.Counter
	CommandsTotal       *prometheus.CounterVec   // labels: command, result=ok|device_error|timeout|io_error|shape_error
	CommandDuration     *prometheus.HistogramVec // labels: command
	CommandRetries      *prometheus.CounterVec   // labels: command
	NotificationsTotal  *prometheus.CounterVec   // labels: kind=peer_data|peer_info|peer_message|unknown|dropped
	LinkRSSI            prometheus.Gauge
	LinkSNR             prometheus.Gauge
	TxPacketsTotal      *prometheus.CounterVec // labels: result=ok|error|throttled
	RxPacketsTotal      prometheus.Counter
	RxBytesTotal        prometheus.Counter
	TxQueueDepth        prometheus.Gauge
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		SerialBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rui3_serial_bytes_received_total",
			Help: "Total bytes read from the serial port.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rui3_commands_total",
			Help: "AT commands issued by command and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rui3_command_duration_seconds",
			Help:    "Latency from AT command write to final result code.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"command"}),
		CommandRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rui3_command_retries_total",
			Help: "AT command resends after retryable failures.",
		}, []string{"command"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rui3_notifications_total",
			Help: "Unsolicited +EVT notifications by decoded kind.",
		}, []string{"kind"}),
		LinkRSSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rui3_link_rssi_dbm",
			Help: "RSSI of the last received packet.",
		}),
		LinkSNR: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rui3_link_snr_db",
			Help: "SNR of the last received packet.",
		}),
		TxPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rui3_tx_packets_total",
			Help: "Transmit attempts by result.",
		}, []string{"result"}),
		RxPacketsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rui3_rx_packets_total",
			Help: "Total payloads received from peers.",
		}),
		RxBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rui3_rx_bytes_total",
			Help: "Total payload bytes received from peers.",
		}),
		TxQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rui3_tx_queue_depth",
			Help: "Pending messages in the transmit queue.",
		}),
	}
	reg.MustRegister(
		m.SerialBytesReceived, m.CommandsTotal, m.CommandDuration, m.CommandRetries,
		m.NotificationsTotal, m.LinkRSSI, m.LinkSNR,
		m.TxPacketsTotal, m.RxPacketsTotal, m.RxBytesTotal, m.TxQueueDepth,
	)
	return m
}

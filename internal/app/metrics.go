package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/rui3-gateway/internal/metrics"
	"github.com/taoyao-code/rui3-gateway/internal/thirdparty"
)

// NewMetrics 初始化注册表、应用指标与推送指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics, *thirdparty.Metrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	pushm := thirdparty.NewMetrics(reg)
	return reg, appm, pushm
}

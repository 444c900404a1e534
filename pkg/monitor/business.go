package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义交易流程的业务监控指标
type BusinessMetrics struct {
	TxInitialisedTotal   *prometheus.CounterVec
	TxExecutedTotal      *prometheus.CounterVec
	TxFailedTotal        *prometheus.CounterVec
	ValidationFailsTotal *prometheus.CounterVec
	ExecuteDuration      *prometheus.HistogramVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxInitialisedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coincore_tx_initialised_total",
			Help: "The total number of initialised transaction flows",
		}, []string{"asset", "action"}),
		TxExecutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coincore_tx_executed_total",
			Help: "The total number of executed transactions",
		}, []string{"asset", "action"}),
		TxFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coincore_tx_failed_total",
			Help: "The total number of failed executions",
		}, []string{"asset", "action"}),
		ValidationFailsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coincore_tx_validation_failures_total",
			Help: "Validation failures by resulting state",
		}, []string{"state"}),
		ExecuteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coincore_tx_execute_duration_seconds",
			Help:    "Duration of transaction execution",
			Buckets: prometheus.DefBuckets,
		}, []string{"asset"}),
	}
}

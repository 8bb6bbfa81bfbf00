// Package metrics 提供 Prometheus helper，包含机器人核心业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/polyarb/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// 信号源概率更新计数
	SignalsTotal prometheus.Counter
	// 定价引擎评估计数
	EvaluationsTotal prometheus.Counter
	// 检测到的套利机会计数
	OpportunitiesTotal prometheus.Counter
	// 账本记录的交易意向计数
	IntentsRecordedTotal prometheus.Counter
	// 按结果统计的执行计数（executed/rejected/cancelled）
	ExecutionsTotal *prometheus.CounterVec
	// 当前套利价差
	ArbSpread prometheus.Gauge
	// 当前持仓标的数
	PositionsOpen prometheus.Gauge
	// 单轮评估耗时
	CycleDuration prometheus.Histogram
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "signals_total",
			Help:      "Total signal probability updates received",
		}),
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "evaluations_total",
			Help:      "Total pricing engine evaluations",
		}),
		OpportunitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "opportunities_total",
			Help:      "Total arbitrage opportunities detected",
		}),
		IntentsRecordedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "intents_recorded_total",
			Help:      "Total trade intents recorded to the ledger",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "executions_total",
			Help:      "Total trade executions by outcome",
		}, []string{"outcome"}),
		ArbSpread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "arb_spread",
			Help:      "Latest observed arbitrage spread",
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "positions_open",
			Help:      "Number of instruments with a non-flat position",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "cycle_duration_seconds",
			Help:      "Evaluation cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.SignalsTotal,
		m.EvaluationsTotal,
		m.OpportunitiesTotal,
		m.IntentsRecordedTotal,
		m.ExecutionsTotal,
		m.ArbSpread,
		m.PositionsOpen,
		m.CycleDuration,
	}

	for _, collector := range collectors {
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}

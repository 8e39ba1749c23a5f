// Package metrics 定义引擎的 Prometheus 指标。
//
// 指标在包初始化时注册到默认 Registry，由宿主进程负责暴露 /metrics。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendRequests 按查询方式与结果状态统计请求数
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_requests_total",
			Help: "Total number of recommendation queries by method and outcome status",
		},
		[]string{"method", "status"}, // method: item / visual / vector
	)

	// CacheLookups 按 TTL 类别统计缓存命中
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_cache_lookups_total",
			Help: "Retrieval cache lookups by class and result",
		},
		[]string{"class", "result"}, // class: recommendation / visual_query / visual_index; result: hit / miss / error
	)

	// ExtractionFailures 视觉特征抽取失败原因
	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_feature_extraction_failures_total",
			Help: "Visual feature extraction failures by stage",
		},
		[]string{"stage"}, // load / decode / embed
	)

	// TrainingDuration 聚类模型训练耗时
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrec_training_duration_seconds",
			Help:    "Duration of cluster model training runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // ok / empty / error
	)

	// IndexBuildDuration 视觉索引重建耗时
	IndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookrec_visual_index_build_duration_seconds",
			Help:    "Duration of visual index rebuilds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// IndexEntries 最近一次构建的索引条目数
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookrec_visual_index_entries",
			Help: "Number of entries in the most recently built visual index",
		},
	)

	// SkippedEntries 排序或构建时被跳过的条目
	SkippedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_visual_entries_skipped_total",
			Help: "Visual index entries skipped during build or ranking",
		},
		[]string{"phase"}, // build / rank
	)

	// CircuitBreakerState 熔断器状态：0 closed，1 half-open，2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookrec_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerRequests 经过熔断器的请求
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // success / failure / rejected
	)
)

// RecordRequest 记录一次查询
func RecordRequest(method, status string) {
	RecommendRequests.WithLabelValues(method, status).Inc()
}

// RecordCacheLookup 记录一次缓存查询
func RecordCacheLookup(class, result string) {
	CacheLookups.WithLabelValues(class, result).Inc()
}

// RecordTraining 记录一次训练
func RecordTraining(result string, d time.Duration) {
	TrainingDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordIndexBuild 记录一次索引构建
func RecordIndexBuild(entries int, d time.Duration) {
	IndexBuildDuration.Observe(d.Seconds())
	IndexEntries.Set(float64(entries))
}

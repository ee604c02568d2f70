// Package metrics 进程内指标注册表，按指标类型聚合样本并在 /ops/metrics 输出
package metrics

import (
	"sort"
	"sync"
	"time"
)

// MetricType 定义指标类型
type MetricType string

const (
	// Counter 计数器类型，只增不减
	Counter MetricType = "counter"
	// Gauge 仪表盘类型，可增可减
	Gauge MetricType = "gauge"
	// Rate 比率类型，计算成功/失败比率
	Rate MetricType = "rate"
	// Trend 趋势类型，计算百分位数等统计值
	Trend MetricType = "trend"
)

// ValueType 定义值的类型
type ValueType string

const (
	// Default 默认值类型
	Default ValueType = "default"
	// Time 时间类型（毫秒）
	Time ValueType = "time"
)

// 网关使用的指标名
const (
	FacadeRequests      = "facade_requests"       // rate: 引擎任务接口调用成功率
	FacadeDuration      = "facade_duration"       // trend: 引擎任务接口耗时（毫秒）
	FacadeDegraded      = "facade_degraded"       // counter: 降级为仅直接读取的次数
	TasksListed         = "tasks_listed"          // counter: 返回的任务记录数
	TaskCompletions     = "task_completions"      // rate: 任务提交成功率
	CompletionDenied    = "completion_denied"     // counter: 授权拒绝次数
	ClaimConflicts      = "completion_conflict"   // counter: 重复/并发提交被拒次数
	CompletionsInFlight = "completions_in_flight" // gauge: 已认领、正在提交的任务数
)

// Metric 定义一个指标
type Metric struct {
	Name     string     `json:"name"`
	Type     MetricType `json:"type"`
	Contains ValueType  `json:"contains,omitempty"`
	Sink     Sink       `json:"-"`
}

// Add 记录一个样本值
func (m *Metric) Add(value float64) {
	m.Sink.Add(Sample{Time: time.Now(), Value: value})
}

// Sample 表示单个指标样本
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Registry 管理所有已注册的指标
type Registry struct {
	metrics map[string]*Metric
	started time.Time
	mu      sync.RWMutex
}

// NewRegistry 创建新的指标注册表
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
		started: time.Now(),
	}
}

// NewMetric 创建并注册新指标，同名指标已存在时直接返回
func (r *Registry) NewMetric(name string, metricType MetricType, contains ValueType) *Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		return m
	}

	m := &Metric{
		Name:     name,
		Type:     metricType,
		Contains: contains,
		Sink:     NewSink(metricType),
	}
	r.metrics[name] = m
	return m
}

// Get 获取已注册的指标
func (r *Registry) Get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Inc 计数器加一
func (r *Registry) Inc(name string) {
	r.NewMetric(name, Counter, Default).Add(1)
}

// Count 计数器增加 n
func (r *Registry) Count(name string, n int) {
	r.NewMetric(name, Counter, Default).Add(float64(n))
}

// Set 设置仪表盘当前值
func (r *Registry) Set(name string, v float64) {
	r.NewMetric(name, Gauge, Default).Add(v)
}

// Pass 记录一次成功（ok）或失败
func (r *Registry) Pass(name string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	r.NewMetric(name, Rate, Default).Add(v)
}

// Observe 记录耗时
func (r *Registry) Observe(name string, d time.Duration) {
	r.NewMetric(name, Trend, Time).Add(float64(d.Microseconds()) / 1000)
}

// Snapshot 各指标的统计结果，按名称排序
func (r *Registry) Snapshot() []MetricSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	elapsed := time.Since(r.started).Seconds()
	out := make([]MetricSnapshot, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, MetricSnapshot{
			Name:     m.Name,
			Type:     m.Type,
			Contains: m.Contains,
			Values:   m.Sink.Format(elapsed),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MetricSnapshot 指标统计结果
type MetricSnapshot struct {
	Name     string             `json:"name"`
	Type     MetricType         `json:"type"`
	Contains ValueType          `json:"contains,omitempty"`
	Values   map[string]float64 `json:"values"`
}

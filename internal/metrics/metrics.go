package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するサンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{MaxLatencySamples: 1000}
}

// KindStats はメッセージ種別ごとの集計
type KindStats struct {
	Total      uint64         `json:"total"`
	Success    uint64         `json:"success"`
	Failed     uint64         `json:"failed"`
	ErrorCodes map[int]uint64 `json:"error_codes,omitempty"`
}

// Metrics はリクエストのメトリクスを収集する
type Metrics struct {
	totalRequests   atomic.Uint64
	successRequests atomic.Uint64
	failedRequests  atomic.Uint64
	totalLatencyNs  atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	lastResetTime     time.Time
	windowRequests    uint64
	latencies         []time.Duration
	maxLatencySamples int
	byKind            map[string]*KindStats
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	samples := config.MaxLatencySamples
	if samples <= 0 {
		samples = DefaultConfig().MaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		lastResetTime:     now,
		latencies:         make([]time.Duration, 0, samples),
		maxLatencySamples: samples,
		byKind:            make(map[string]*KindStats),
	}
}

// RecordSuccess は成功したリクエストを記録する
func (m *Metrics) RecordSuccess(kind string, latency time.Duration) {
	m.totalRequests.Add(1)
	m.successRequests.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowRequests++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	ks := m.kind(kind)
	ks.Total++
	ks.Success++
	m.mu.Unlock()
}

// RecordFailure は失敗したリクエストをエラーコード付きで記録する
func (m *Metrics) RecordFailure(kind string, code int, latency time.Duration) {
	m.totalRequests.Add(1)
	m.failedRequests.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowRequests++
	ks := m.kind(kind)
	ks.Total++
	ks.Failed++
	if ks.ErrorCodes == nil {
		ks.ErrorCodes = make(map[int]uint64)
	}
	ks.ErrorCodes[code]++
	m.mu.Unlock()
}

// kind は種別の集計を返す。m.mu を保持して呼ぶこと
func (m *Metrics) kind(kind string) *KindStats {
	ks, ok := m.byKind[kind]
	if !ok {
		ks = &KindStats{}
		m.byKind[kind] = ks
	}
	return ks
}

// TotalRequests は総リクエスト数を返す
func (m *Metrics) TotalRequests() uint64 {
	return m.totalRequests.Load()
}

// SuccessRequests は成功リクエスト数を返す
func (m *Metrics) SuccessRequests() uint64 {
	return m.successRequests.Load()
}

// FailedRequests は失敗リクエスト数を返す
func (m *Metrics) FailedRequests() uint64 {
	return m.failedRequests.Load()
}

// RPS は現在のRequests Per Secondを返す
func (m *Metrics) RPS() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowRequests) / elapsed
}

// OverallRPS は開始からの平均RPSを返す
func (m *Metrics) OverallRPS() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.totalRequests.Load()) / elapsed
}

// AverageLatency は平均レイテンシを返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency はP99レイテンシを返す（成功リクエストのサンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failedRequests.Load()) / float64(total)
}

// ByKind は種別ごとの集計のコピーを返す
func (m *Metrics) ByKind() map[string]KindStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]KindStats, len(m.byKind))
	for kind, ks := range m.byKind {
		c := *ks
		if ks.ErrorCodes != nil {
			c.ErrorCodes = make(map[int]uint64, len(ks.ErrorCodes))
			for code, n := range ks.ErrorCodes {
				c.ErrorCodes[code] = n
			}
		}
		out[kind] = c
	}
	return out
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowRequests = 0
	m.lastResetTime = time.Now()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalRequests   uint64               `json:"total_requests"`
	SuccessRequests uint64               `json:"success_requests"`
	FailedRequests  uint64               `json:"failed_requests"`
	RPS             float64              `json:"rps"`
	OverallRPS      float64              `json:"overall_rps"`
	AverageLatency  time.Duration        `json:"avg_latency_ns"`
	P99Latency      time.Duration        `json:"p99_latency_ns"`
	ErrorRate       float64              `json:"error_rate"`
	Elapsed         time.Duration        `json:"elapsed_ns"`
	ByKind          map[string]KindStats `json:"by_kind"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   m.TotalRequests(),
		SuccessRequests: m.SuccessRequests(),
		FailedRequests:  m.FailedRequests(),
		RPS:             m.RPS(),
		OverallRPS:      m.OverallRPS(),
		AverageLatency:  m.AverageLatency(),
		P99Latency:      m.P99Latency(),
		ErrorRate:       m.ErrorRate(),
		Elapsed:         time.Since(m.startTime),
		ByKind:          m.ByKind(),
	}
}

package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asg0451/crakv/internal/chaos"
	"github.com/asg0451/crakv/internal/client"
	"github.com/asg0451/crakv/internal/cluster"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/metrics"
	"github.com/asg0451/crakv/internal/recovery"
	"github.com/asg0451/crakv/internal/store"
)

// Config はシナリオの設定
type Config struct {
	Name        string        // シナリオ名
	Description string        // 説明
	Duration    time.Duration // 実行時間
	NodeCount   int           // ノード数

	// ノード設定
	NodeWorkers int        // ノードごとのハンドラワーカー数
	StoreMode   store.Mode // ストア実装

	// クライアント設定
	ClientWorkers  int           // ワーカー数
	WriteRatio     float64       // 書き込み比率
	CasRatio       float64       // cas比率
	RequestTimeout time.Duration // リクエストタイムアウト

	// カオス設定
	EnableChaos   bool               // カオス注入を有効化
	ChaosInterval time.Duration      // 攻撃間隔
	ChaosTargets  int                // 同時攻撃対象数
	AttackTypes   []chaos.AttackType // 有効な攻撃タイプ
	DelayAmount   time.Duration      // Delay攻撃の遅延量

	// 復旧設定
	EnableRecovery bool          // 障害の自動解除を有効化
	RecoveryDelay  time.Duration // 解除までの待機時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:           "default",
		Description:    "Default scenario",
		Duration:       10 * time.Second,
		NodeCount:      3,
		NodeWorkers:    4,
		StoreMode:      store.ModeLocked,
		ClientWorkers:  10,
		WriteRatio:     0.4,
		CasRatio:       0.2,
		RequestTimeout: 500 * time.Millisecond,
		EnableChaos:    true,
		ChaosInterval:  2 * time.Second,
		ChaosTargets:   1,
		AttackTypes:    []chaos.AttackType{chaos.AttackPartition, chaos.AttackDelay},
		DelayAmount:    100 * time.Millisecond,
		EnableRecovery: true,
		RecoveryDelay:  1 * time.Second,
	}
}

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration

	// メトリクス
	TotalRequests   uint64
	SuccessRequests uint64
	FailedRequests  uint64
	ErrorRate       float64
	AvgLatency      time.Duration
	P99Latency      time.Duration
	ByKind          map[string]metrics.KindStats

	// ネットワーク統計
	Delivered uint64
	Dropped   uint64

	// カオス統計
	TotalAttacks   uint64
	AttacksByType  map[string]uint64
	TotalRecovered uint64

	// ノード状態
	FinalNodeStatus map[string]string
	FinalStoreSize  map[string]int
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config   Config
	eventBus *events.Bus

	cluster  *cluster.Cluster
	client   *client.Client
	monkey   *chaos.Monkey
	recovery *recovery.Manager

	mu      sync.RWMutex
	running bool
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// Run はシナリオを実行する
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("scenario is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Info("", "=== Scenario '%s' started ===", e.config.Name)
	logger.Info("", "Description: %s", e.config.Description)

	result := &Result{
		ScenarioName: e.config.Name,
		StartTime:    time.Now(),
	}

	if err := e.setup(ctx); err != nil {
		e.teardown()
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	scenarioCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.runScenario(scenarioCtx)

	// クライアントとカオスを止めてから集計し、最後にクラスタを止める
	e.stopLoad()
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	e.collectResults(result)

	if err := e.teardown(); err != nil {
		logger.Warn("", "Cluster stopped with errors: %v", err)
	}

	logger.Info("", "=== Scenario '%s' completed ===", e.config.Name)

	return result, nil
}

// setup はシナリオ実行前のセットアップ
func (e *Engine) setup(ctx context.Context) error {
	clusterConfig := cluster.DefaultConfig()
	if e.config.NodeWorkers > 0 {
		clusterConfig.Workers = e.config.NodeWorkers
	}
	if e.config.StoreMode != "" {
		clusterConfig.StoreMode = e.config.StoreMode
	}

	c := cluster.New(clusterConfig)
	c.SetEventBus(e.eventBus)
	e.mu.Lock()
	e.cluster = c
	e.mu.Unlock()

	if err := c.CreateNodes(e.config.NodeCount, "n"); err != nil {
		return fmt.Errorf("failed to create nodes: %w", err)
	}
	if err := c.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start nodes: %w", err)
	}

	clientConfig := client.DefaultConfig()
	clientConfig.NumWorkers = e.config.ClientWorkers
	clientConfig.WriteRatio = e.config.WriteRatio
	clientConfig.CasRatio = e.config.CasRatio
	if e.config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = e.config.RequestTimeout
	}
	cl := client.New(c, clientConfig)

	var monkey *chaos.Monkey
	if e.config.EnableChaos {
		chaosConfig := chaos.DefaultConfig()
		chaosConfig.Interval = e.config.ChaosInterval
		chaosConfig.TargetCount = e.config.ChaosTargets
		chaosConfig.AttackTypes = e.config.AttackTypes
		if e.config.DelayAmount > 0 {
			chaosConfig.DelayDuration = e.config.DelayAmount
		}
		monkey = chaos.New(c, chaosConfig)
		monkey.SetEventBus(e.eventBus)
	}

	var rm *recovery.Manager
	if e.config.EnableRecovery {
		recoveryConfig := recovery.DefaultConfig()
		recoveryConfig.RecoveryDelay = e.config.RecoveryDelay
		if e.config.RecoveryDelay > 0 && e.config.RecoveryDelay < recoveryConfig.HealthCheckInterval {
			recoveryConfig.HealthCheckInterval = e.config.RecoveryDelay
		}
		rm = recovery.New(c, recoveryConfig)
		rm.SetEventBus(e.eventBus)
	}

	e.mu.Lock()
	e.client = cl
	e.monkey = monkey
	e.recovery = rm
	e.mu.Unlock()

	return nil
}

// runScenario はシナリオのメイン処理
func (e *Engine) runScenario(ctx context.Context) {
	e.client.Start(ctx)

	if e.monkey != nil {
		e.monkey.Start(ctx)
	}

	if e.recovery != nil {
		e.recovery.Start(ctx)
	}

	<-ctx.Done()

	logger.Info("", "Scenario duration completed, stopping components...")
}

// stopLoad はクライアントとカオス関連を停止する
func (e *Engine) stopLoad() {
	if e.client != nil {
		e.client.Stop()
	}
	if e.monkey != nil {
		e.monkey.Stop()
	}
	if e.recovery != nil {
		e.recovery.Stop()
	}
}

// teardown はシナリオ実行後のクリーンアップ
func (e *Engine) teardown() error {
	e.stopLoad()
	if e.cluster != nil {
		return e.cluster.StopAll()
	}
	return nil
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result) {
	snapshot := e.client.Metrics().Snapshot()
	result.TotalRequests = snapshot.TotalRequests
	result.SuccessRequests = snapshot.SuccessRequests
	result.FailedRequests = snapshot.FailedRequests
	result.ErrorRate = snapshot.ErrorRate
	result.AvgLatency = snapshot.AverageLatency
	result.P99Latency = snapshot.P99Latency
	result.ByKind = snapshot.ByKind

	netStats := e.cluster.Network().Stats()
	result.Delivered = netStats.Delivered
	result.Dropped = netStats.Dropped

	if e.monkey != nil {
		stats := e.monkey.Stats()
		result.TotalAttacks = stats.TotalAttacks
		result.AttacksByType = stats.ByType
	}

	if e.recovery != nil {
		result.TotalRecovered = e.recovery.Stats().TotalRecoveries
	}

	result.FinalNodeStatus = make(map[string]string)
	result.FinalStoreSize = make(map[string]int)
	for _, n := range e.cluster.Nodes() {
		status := n.State().String()
		if err := e.cluster.Err(n.ID()); err != nil {
			status = "failed: " + err.Error()
		}
		result.FinalNodeStatus[n.ID()] = status
		result.FinalStoreSize[n.ID()] = n.Store().Len()
	}
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
================================================================================
                         SCENARIO REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v

TRAFFIC METRICS
---------------
  Total Requests:   %d
  Success:          %d
  Failed:           %d
  Error Rate:       %.2f%%
  Avg Latency:      %v
  P99 Latency:      %v
`,
		r.ScenarioName,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		r.TotalRequests,
		r.SuccessRequests,
		r.FailedRequests,
		r.ErrorRate*100,
		r.AvgLatency.Round(time.Microsecond),
		r.P99Latency.Round(time.Microsecond),
	)

	b.WriteString("\nBY REQUEST KIND\n---------------\n")
	for _, kind := range sortedKeys(r.ByKind) {
		stats := r.ByKind[kind]
		fmt.Fprintf(&b, "  %-8s total=%-8d ok=%-8d failed=%-8d", kind, stats.Total, stats.Success, stats.Failed)
		codes := make([]int, 0, len(stats.ErrorCodes))
		for code := range stats.ErrorCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, " code%d=%d", code, stats.ErrorCodes[code])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `
NETWORK
-------
  Delivered:        %d
  Dropped:          %d

CHAOS STATISTICS
----------------
  Total Attacks:    %d
`, r.Delivered, r.Dropped, r.TotalAttacks)
	for _, typ := range sortedKeys(r.AttacksByType) {
		fmt.Fprintf(&b, "  %-16s  %d\n", typ+":", r.AttacksByType[typ])
	}
	fmt.Fprintf(&b, "  Healed:           %d\n", r.TotalRecovered)

	b.WriteString("\nFINAL NODE STATUS\n-----------------\n")
	for _, nodeID := range sortedKeys(r.FinalNodeStatus) {
		fmt.Fprintf(&b, "  %-20s %s (keys: %d)\n", nodeID+":", r.FinalNodeStatus[nodeID], r.FinalStoreSize[nodeID])
	}

	b.WriteString("\n================================================================================")

	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// ChaosStats はカオス統計を返す
func (e *Engine) ChaosStats() *chaos.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.monkey == nil {
		return nil
	}
	stats := e.monkey.Stats()
	return &stats
}

// RecoveryStats は復旧統計を返す
func (e *Engine) RecoveryStats() *recovery.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.recovery == nil {
		return nil
	}
	stats := e.recovery.Stats()
	return &stats
}

// Metrics はクライアントメトリクスを返す
func (e *Engine) Metrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.client == nil {
		return nil
	}
	snapshot := e.client.Metrics().Snapshot()
	return &snapshot
}

// Cluster はクラスタを返す
func (e *Engine) Cluster() *cluster.Cluster {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cluster
}

package recovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asg0451/crakv/internal/cluster"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
)

// Config はRecoveryManagerの設定
type Config struct {
	HealthCheckInterval time.Duration // ヘルスチェック間隔
	RecoveryDelay       time.Duration // 障害検出から解除までの待機時間
	AutoHeal            bool          // ネットワーク障害の自動解除
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 1 * time.Second,
		RecoveryDelay:       2 * time.Second,
		AutoHeal:            true,
	}
}

// NodeState はノードの状態追跡
type NodeState struct {
	LastSeen time.Time
	FaultAt  time.Time // 障害を検出した時刻。健全ならゼロ値
	Failed   bool      // ノードループが異常終了したことを報告済み
}

// Stats は復旧統計
type Stats struct {
	TotalRecoveries  uint64 `json:"total_recoveries"`
	HealedPartitions uint64 `json:"healed_partitions"`
	ClearedDelays    uint64 `json:"cleared_delays"`
	CurrentlyFaulted int    `json:"currently_faulted"`
	FailedNodes      int    `json:"failed_nodes"`
}

// Manager はクラスタを監視し、注入された障害を一定時間後に解除する
//
// 異常終了したノードのループは再開できないため、検出して報告するだけ。
type Manager struct {
	config   Config
	cluster  *cluster.Cluster
	eventBus *events.Bus

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.RWMutex
	nodeStates map[string]*NodeState
	stats      Stats
}

// New は新しいRecoveryManagerを作成する
func New(c *cluster.Cluster, config Config) *Manager {
	return &Manager{
		config:     config,
		cluster:    c,
		nodeStates: make(map[string]*NodeState),
	}
}

// SetEventBus はイベントバスを設定する
func (m *Manager) SetEventBus(bus *events.Bus) {
	m.eventBus = bus
}

// Start は復旧マネージャーを開始する
func (m *Manager) Start(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.healthCheckLoop()

	logger.Info("", "RecoveryManager started (interval: %v, delay: %v)",
		m.config.HealthCheckInterval, m.config.RecoveryDelay)
}

// Stop は復旧マネージャーを停止する
func (m *Manager) Stop() {
	if !m.running.Swap(false) {
		return
	}

	m.cancel()
	m.wg.Wait()

	stats := m.Stats()
	logger.Info("", "RecoveryManager stopped (recoveries: %d, failed nodes: %d)",
		stats.TotalRecoveries, stats.FailedNodes)
}

// healthCheckLoop は定期的にヘルスチェックを実行する
func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CheckAndRecover(time.Now())
		}
	}
}

// CheckAndRecover は全ノードをチェックし、必要に応じて障害を解除する
func (m *Manager) CheckAndRecover(now time.Time) {
	for _, id := range m.cluster.IDs() {
		m.checkNode(id, now)
	}
}

// checkNode は個々のノードをチェックする
func (m *Manager) checkNode(nodeID string, now time.Time) {
	m.mu.Lock()
	state, exists := m.nodeStates[nodeID]
	if !exists {
		state = &NodeState{LastSeen: now}
		m.nodeStates[nodeID] = state
	}
	m.mu.Unlock()

	if err := m.cluster.Err(nodeID); err != nil {
		m.handleFailedNode(nodeID, state, err)
		return
	}

	network := m.cluster.Network()
	fault := network.Fault(nodeID)

	m.mu.Lock()

	// 障害なし
	if !fault.Partitioned && fault.Delay == 0 {
		if !state.FaultAt.IsZero() {
			state.FaultAt = time.Time{}
			m.stats.CurrentlyFaulted--
		}
		state.LastSeen = now
		m.mu.Unlock()
		return
	}

	// 初回検出
	if state.FaultAt.IsZero() {
		state.FaultAt = now
		m.stats.CurrentlyFaulted++
		m.mu.Unlock()
		logger.Warn("", "RecoveryManager: detected fault on node %s (partitioned: %v, delay: %v)",
			nodeID, fault.Partitioned, fault.Delay)
		return
	}

	// 復旧待機時間チェック
	if !m.config.AutoHeal || now.Sub(state.FaultAt) < m.config.RecoveryDelay {
		m.mu.Unlock()
		return
	}

	state.FaultAt = time.Time{}
	state.LastSeen = now
	m.stats.CurrentlyFaulted--
	m.stats.TotalRecoveries++
	if fault.Partitioned {
		m.stats.HealedPartitions++
	}
	if fault.Delay > 0 {
		m.stats.ClearedDelays++
	}
	m.mu.Unlock()

	network.Heal(nodeID)
	logger.Info("", "RecoveryManager: healed node %s", nodeID)
	m.eventBus.Publish(events.NewChaosHealEvent(nodeID))
}

// handleFailedNode は異常終了したノードを一度だけ報告する
func (m *Manager) handleFailedNode(nodeID string, state *NodeState, err error) {
	m.mu.Lock()
	if state.Failed {
		m.mu.Unlock()
		return
	}
	state.Failed = true
	m.stats.FailedNodes++
	m.mu.Unlock()

	logger.Error("", "RecoveryManager: node %s stopped with error: %v", nodeID, err)
}

// IsRunning は実行中かどうかを返す
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Stats は復旧統計を返す
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// ResetStats は統計をリセットする
func (m *Manager) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
	m.nodeStates = make(map[string]*NodeState)
}

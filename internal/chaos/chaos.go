package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asg0451/crakv/internal/cluster"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
)

// AttackType は障害の種類を表す
type AttackType int

const (
	AttackPartition AttackType = iota
	AttackDelay
)

func (a AttackType) String() string {
	switch a {
	case AttackPartition:
		return "partition"
	case AttackDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// ParseAttackTypes は文字列の攻撃タイプをパースする
func ParseAttackTypes(types []string) ([]AttackType, error) {
	var attacks []AttackType

	for _, t := range types {
		switch strings.ToLower(t) {
		case "partition":
			attacks = append(attacks, AttackPartition)
		case "delay":
			attacks = append(attacks, AttackDelay)
		default:
			return nil, fmt.Errorf("unknown attack type: %s", t)
		}
	}

	return attacks, nil
}

// Config はChaosMonkeyの設定
type Config struct {
	Interval      time.Duration // 攻撃間隔
	TargetCount   int           // 同時攻撃対象数
	AttackTypes   []AttackType  // 有効な攻撃タイプ
	DelayDuration time.Duration // Delay攻撃時の遅延時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		TargetCount:   1,
		AttackTypes:   []AttackType{AttackPartition, AttackDelay},
		DelayDuration: 100 * time.Millisecond,
	}
}

// Stats はカオス攻撃の統計情報
type Stats struct {
	TotalAttacks uint64            `json:"total_attacks"`
	ByType       map[string]uint64 `json:"attacks_by_type"`
}

// Monkey はクラスタのネットワークに障害を注入する
// 障害の解除はrecovery.Managerが担い、Stop時には残った障害を全て解除する
type Monkey struct {
	config   Config
	cluster  *cluster.Cluster
	eventBus *events.Bus

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu           sync.RWMutex
	attackCount  uint64
	attackByType map[AttackType]uint64
	lastAttack   time.Time
}

// New は新しいChaosMonkeyを作成する
func New(c *cluster.Cluster, config Config) *Monkey {
	return &Monkey{
		config:       config,
		cluster:      c,
		attackByType: make(map[AttackType]uint64),
	}
}

// SetEventBus はイベントバスを設定する
func (m *Monkey) SetEventBus(bus *events.Bus) {
	m.eventBus = bus
}

// Start はカオス注入を開始する
func (m *Monkey) Start(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.attackLoop()

	logger.Info("", "ChaosMonkey started (interval: %v, targets: %d)",
		m.config.Interval, m.config.TargetCount)
}

// Stop はカオス注入を停止し、注入済みの障害を解除する
func (m *Monkey) Stop() {
	if !m.running.Swap(false) {
		return
	}

	m.cancel()
	m.wg.Wait()

	m.healAll()

	logger.Info("", "ChaosMonkey stopped (total attacks: %d)", m.AttackCount())
}

// attackLoop は定期的に攻撃を実行する
func (m *Monkey) attackLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Attack()
		}
	}
}

// Attack は1回分の攻撃を実行する
func (m *Monkey) Attack() {
	targets := m.selectTargets()
	if len(targets) == 0 {
		return
	}

	attackType := m.selectAttackType()

	for _, id := range targets {
		m.executeAttack(id, attackType)
	}

	m.mu.Lock()
	m.attackCount++
	m.lastAttack = time.Now()
	m.mu.Unlock()
}

// selectTargets は攻撃対象のノードを選択する
func (m *Monkey) selectTargets() []string {
	network := m.cluster.Network()

	// 実行中で障害の入っていないノードのみを対象とする
	healthy := make([]string, 0)
	for _, n := range m.cluster.Nodes() {
		if m.cluster.Err(n.ID()) != nil {
			continue
		}
		if f := network.Fault(n.ID()); f.Partitioned || f.Delay > 0 {
			continue
		}
		healthy = append(healthy, n.ID())
	}

	if len(healthy) == 0 {
		return nil
	}

	count := m.config.TargetCount
	if count > len(healthy) {
		count = len(healthy)
	}

	rand.Shuffle(len(healthy), func(i, j int) {
		healthy[i], healthy[j] = healthy[j], healthy[i]
	})

	return healthy[:count]
}

// selectAttackType は攻撃タイプをランダムに選択する
func (m *Monkey) selectAttackType() AttackType {
	if len(m.config.AttackTypes) == 0 {
		return AttackPartition
	}
	return m.config.AttackTypes[rand.Intn(len(m.config.AttackTypes))]
}

// executeAttack は指定された攻撃を実行する
func (m *Monkey) executeAttack(nodeID string, attackType AttackType) {
	switch attackType {
	case AttackPartition:
		m.attackPartition(nodeID)
	case AttackDelay:
		m.attackDelay(nodeID)
	}
}

// attackPartition はノードをネットワークから孤立させる
func (m *Monkey) attackPartition(nodeID string) {
	m.cluster.Network().Partition(nodeID)
	logger.Warn("", "ChaosMonkey: partitioned node %s", nodeID)
	m.eventBus.Publish(events.NewChaosAttackEvent(nodeID, events.AttackTypePartition))

	m.mu.Lock()
	m.attackByType[AttackPartition]++
	m.mu.Unlock()
}

// attackDelay はノードとの通信に遅延を注入する
func (m *Monkey) attackDelay(nodeID string) {
	m.cluster.Network().SetDelay(nodeID, m.config.DelayDuration)
	logger.Warn("", "ChaosMonkey: injected %v delay to node %s", m.config.DelayDuration, nodeID)
	m.eventBus.Publish(events.NewChaosAttackEventWithDelay(nodeID, m.config.DelayDuration))

	m.mu.Lock()
	m.attackByType[AttackDelay]++
	m.mu.Unlock()
}

// healAll は全ノードの障害を解除する
func (m *Monkey) healAll() {
	network := m.cluster.Network()
	for _, id := range m.cluster.IDs() {
		if f := network.Fault(id); f.Partitioned || f.Delay > 0 {
			network.Heal(id)
			logger.Info("", "ChaosMonkey: healed node %s on shutdown", id)
			m.eventBus.Publish(events.NewChaosHealEvent(id))
		}
	}
}

// IsRunning は実行中かどうかを返す
func (m *Monkey) IsRunning() bool {
	return m.running.Load()
}

// AttackCount は攻撃回数を返す
func (m *Monkey) AttackCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attackCount
}

// LastAttack は最後に攻撃した時刻を返す
func (m *Monkey) LastAttack() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAttack
}

// Stats は攻撃統計を返す
func (m *Monkey) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]uint64)
	for t, count := range m.attackByType {
		byType[t.String()] = count
	}

	return Stats{
		TotalAttacks: m.attackCount,
		ByType:       byType,
	}
}

package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/store"
)

// Manager はクラスタ管理の基本操作を定義するインターフェース
type Manager interface {
	AddNode(nodeID string) (*node.Node, error)
	RemoveNode(nodeID string) error
	GetNode(nodeID string) (*node.Node, bool)
	Nodes() []*node.Node
	StartAll(ctx context.Context) error
	StopAll() error
	Size() int
	RunningCount() int
}

// Ensure Cluster implements Manager
var _ Manager = (*Cluster)(nil)

// Config はクラスタの設定
type Config struct {
	Workers   int        // ノードごとのハンドラワーカー数（0でCPU数）
	StoreMode store.Mode // ストア実装
	InboxSize int        // エンドポイントの受信バッファ
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		StoreMode: store.ModeLocked,
		InboxSize: 1024,
	}
}

// member はクラスタ内の1ノードと実行状態
type member struct {
	node       *node.Node
	closeStore func()
	done       chan struct{} // Runが返ると閉じる。未起動ならnil
	err        error         // done が閉じた後にのみ読む
}

func (m *member) alive() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Cluster はインプロセスのネットワーク上で複数のKVノードを動かす
type Cluster struct {
	config   Config
	network  *bus.Network
	eventBus *events.Bus

	mu      sync.RWMutex
	members map[string]*member
}

// New は新しいクラスタを作成する
func New(config Config) *Cluster {
	return &Cluster{
		config:  config,
		network: bus.NewNetwork(config.InboxSize),
		members: make(map[string]*member),
	}
}

// SetEventBus はノードに渡すイベントバスを設定する
func (c *Cluster) SetEventBus(b *events.Bus) {
	c.eventBus = b
}

// Network はノードが接続しているネットワークを返す
func (c *Cluster) Network() *bus.Network {
	return c.network
}

// AddNode はネットワークにノードを参加させる。起動はStartAllで行う
func (c *Cluster) AddNode(nodeID string) (*node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.members[nodeID]; exists {
		return nil, fmt.Errorf("node %s already exists in cluster", nodeID)
	}

	ep, err := c.network.Join(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to join node %s: %w", nodeID, err)
	}

	s, closeStore := store.New(c.config.StoreMode)
	n := node.NewKV(node.Config{ID: nodeID, StartMsgID: 1, Workers: c.config.Workers}, s, ep, ep)
	n.SetEventBus(c.eventBus)

	c.members[nodeID] = &member{node: n, closeStore: closeStore}
	logger.Info("", "Node %s added to cluster", nodeID)
	return n, nil
}

// RemoveNode はノードをネットワークから外し、停止を待つ
func (c *Cluster) RemoveNode(nodeID string) error {
	c.mu.Lock()
	m, exists := c.members[nodeID]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("node %s not found in cluster", nodeID)
	}
	delete(c.members, nodeID)
	c.mu.Unlock()

	c.network.Leave(nodeID)
	err := c.wait(m)
	logger.Info("", "Node %s removed from cluster", nodeID)
	return err
}

// GetNode はノードIDでノードを取得する
func (c *Cluster) GetNode(nodeID string) (*node.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, exists := c.members[nodeID]
	if !exists {
		return nil, false
	}
	return m.node, true
}

// IDs はノードIDをソートして返す
func (c *Cluster) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes は全てのノードをID順で返す
func (c *Cluster) Nodes() []*node.Node {
	ids := c.IDs()

	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes := make([]*node.Node, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.members[id]; ok {
			nodes = append(nodes, m.node)
		}
	}
	return nodes
}

// StartAll は未起動のノードを全て起動する
func (c *Cluster) StartAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := 0
	for _, m := range c.members {
		if m.done != nil {
			continue
		}
		m.done = make(chan struct{})
		go func(m *member) {
			defer close(m.done)
			m.err = m.node.Run(ctx)
		}(m)
		started++
	}

	logger.Info("", "Started %d nodes in cluster (total: %d)", started, len(c.members))
	return nil
}

// StopAll はネットワークを閉じて全ノードの停止を待つ
// バスのクローズ以外で終了したノードのエラーをまとめて返す
func (c *Cluster) StopAll() error {
	c.mu.RLock()
	members := make([]*member, 0, len(c.members))
	for _, m := range c.members {
		members = append(members, m)
	}
	c.mu.RUnlock()

	logger.Info("", "Stopping all nodes in cluster (count: %d)", len(members))
	c.network.Close()

	var errs []error
	for _, m := range members {
		if err := c.wait(m); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", m.node.ID(), err))
		}
	}

	if len(errs) > 0 {
		logger.Warn("", "%d nodes stopped with errors", len(errs))
		return errors.Join(errs...)
	}

	logger.Info("", "All nodes stopped")
	return nil
}

// wait はノードの終了を待ってストアを閉じる
func (c *Cluster) wait(m *member) error {
	var err error
	if m.done != nil {
		<-m.done
		err = m.err
	}
	if m.closeStore != nil {
		m.closeStore()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Size はクラスタ内のノード数を返す
func (c *Cluster) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// RunningCount は実行中のノード数を返す
func (c *Cluster) RunningCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, m := range c.members {
		if m.alive() {
			count++
		}
	}
	return count
}

// Err は停止済みノードの終了エラーを返す。実行中・未起動ならnil
func (c *Cluster) Err(nodeID string) error {
	c.mu.RLock()
	m, exists := c.members[nodeID]
	c.mu.RUnlock()

	if !exists || m.done == nil {
		return nil
	}
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// FailedNodes は異常終了したノードのIDを返す
func (c *Cluster) FailedNodes() []string {
	var failed []string
	for _, id := range c.IDs() {
		if err := c.Err(id); err != nil && !errors.Is(err, context.Canceled) {
			failed = append(failed, id)
		}
	}
	return failed
}

// CreateNodes は指定された数のノードを作成してクラスタに追加する
// IDは prefix1, prefix2, ... の形式
func (c *Cluster) CreateNodes(count int, prefix string) error {
	logger.Info("", "Creating %d nodes with prefix '%s'", count, prefix)

	for i := 0; i < count; i++ {
		if _, err := c.AddNode(fmt.Sprintf("%s%d", prefix, i+1)); err != nil {
			return err
		}
	}

	logger.Info("", "Created %d nodes successfully", count)
	return nil
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/logger"
)

const defaultInboxSize = 1024

// Fault はアドレス単位で注入されている障害
type Fault struct {
	Partitioned bool          // 送受信を全て破棄する
	Delay       time.Duration // 配送に追加する遅延
}

// NetworkStats はネットワークの配送統計
type NetworkStats struct {
	Delivered uint64
	Dropped   uint64
}

// Network は複数のエンドポイント間でメッセージを配送するインプロセスのネットワーク
//
// 宛先不明・パーティション中のメッセージは実ネットワークと同様に黙って捨てる。
type Network struct {
	inboxSize int

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	faults    map[string]Fault
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewNetwork は新しいネットワークを作成する
func NewNetwork(inboxSize int) *Network {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		inboxSize: inboxSize,
		endpoints: make(map[string]*Endpoint),
		faults:    make(map[string]Fault),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Join はアドレスを登録しエンドポイントを返す
func (n *Network) Join(addr string) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if _, exists := n.endpoints[addr]; exists {
		return nil, fmt.Errorf("address %s already joined", addr)
	}

	ep := &Endpoint{
		addr:  addr,
		net:   n,
		inbox: NewPipe(n.inboxSize),
	}
	n.endpoints[addr] = ep
	return ep, nil
}

// Leave はアドレスの登録を解除し、その受信キューを閉じる
func (n *Network) Leave(addr string) {
	n.mu.Lock()
	ep, exists := n.endpoints[addr]
	delete(n.endpoints, addr)
	delete(n.faults, addr)
	n.mu.Unlock()

	if exists {
		ep.inbox.Close()
	}
}

// Addrs は登録済みのアドレスをソートして返す
func (n *Network) Addrs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	addrs := make([]string, 0, len(n.endpoints))
	for addr := range n.endpoints {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Partition はアドレスを孤立させる
func (n *Network) Partition(addr string) {
	n.updateFault(addr, func(f *Fault) { f.Partitioned = true })
	logger.Debug(addr, "partitioned")
}

// SetDelay はアドレスへの配送遅延を設定する
func (n *Network) SetDelay(addr string, d time.Duration) {
	n.updateFault(addr, func(f *Fault) { f.Delay = d })
	logger.Debug(addr, "delay set to %v", d)
}

// Heal はアドレスの障害を全て取り除く
func (n *Network) Heal(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.faults, addr)
}

// Fault は現在の障害設定を返す
func (n *Network) Fault(addr string) Fault {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.faults[addr]
}

func (n *Network) updateFault(addr string, fn func(*Fault)) {
	n.mu.Lock()
	defer n.mu.Unlock()

	f := n.faults[addr]
	fn(&f)
	n.faults[addr] = f
}

// Stats は配送統計を返す
func (n *Network) Stats() NetworkStats {
	return NetworkStats{
		Delivered: n.delivered.Load(),
		Dropped:   n.dropped.Load(),
	}
}

// Close は全ての受信キューを閉じ、遅延配送の完了を待つ
func (n *Network) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	endpoints := make([]*Endpoint, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		endpoints = append(endpoints, ep)
	}
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()

	for _, ep := range endpoints {
		ep.inbox.Close()
	}
}

func (n *Network) route(ctx context.Context, msg maelstrom.Message) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return ErrClosed
	}
	dest, exists := n.endpoints[msg.Dest]
	srcFault := n.faults[msg.Src]
	destFault := n.faults[msg.Dest]
	delay := srcFault.Delay + destFault.Delay
	drop := !exists || srcFault.Partitioned || destFault.Partitioned
	if !drop && delay > 0 {
		// Close後にAddしないようロック中に登録する
		n.wg.Add(1)
	}
	n.mu.RUnlock()

	if drop {
		n.dropped.Add(1)
		logger.Debug(msg.Src, "dropped message to %s", msg.Dest)
		return nil
	}
	if delay <= 0 {
		return n.deliver(ctx, dest, msg)
	}

	go func() {
		defer n.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-n.ctx.Done():
			n.dropped.Add(1)
		case <-timer.C:
			_ = n.deliver(n.ctx, dest, msg)
		}
	}()
	return nil
}

func (n *Network) deliver(ctx context.Context, dest *Endpoint, msg maelstrom.Message) error {
	if err := dest.inbox.Send(ctx, msg); err != nil {
		n.dropped.Add(1)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	n.delivered.Add(1)
	return nil
}

// Ensure Endpoint implements Conn
var _ Conn = (*Endpoint)(nil)

// Endpoint はネットワーク上の1アドレス
type Endpoint struct {
	addr  string
	net   *Network
	inbox *Pipe
}

// Addr はエンドポイントのアドレスを返す
func (e *Endpoint) Addr() string {
	return e.addr
}

// Recv は自分宛てのメッセージを受け取る
func (e *Endpoint) Recv(ctx context.Context) (maelstrom.Message, error) {
	return e.inbox.Recv(ctx)
}

// Send はメッセージを宛先へ配送する。Srcが空なら自分のアドレスを入れる
func (e *Endpoint) Send(ctx context.Context, msg maelstrom.Message) error {
	if msg.Src == "" {
		msg.Src = e.addr
	}
	return e.net.route(ctx, msg)
}

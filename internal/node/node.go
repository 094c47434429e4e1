package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/metrics"
	"github.com/asg0451/crakv/internal/protocol"
	"github.com/asg0451/crakv/internal/store"
	"github.com/asg0451/crakv/internal/worker"
)

// ErrUnexpectedMessage はノードが処理できないメッセージを受け取ったことを表す
var ErrUnexpectedMessage = errors.New("unexpected message")

// State はノードループの状態を表す
type State int32

const (
	StateRunning State = iota
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Policy は未知の種別のメッセージを受け取ったときの方針
type Policy int

const (
	// PolicyFatal はログを出してノードを異常終了させる
	PolicyFatal Policy = iota
	// PolicyIgnore はログを出して読み捨てる
	PolicyIgnore
)

// Role はノードの役割
type Role string

const (
	RoleKV   Role = "kv"
	RoleEcho Role = "echo"
)

// ParseRole は設定文字列をRoleに変換する
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case "", RoleKV:
		return RoleKV, nil
	case RoleEcho:
		return RoleEcho, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// HandlerFunc は1つのリクエストを処理する
// エラーを返すとノードループ全体が終了する
type HandlerFunc func(ctx context.Context, msg maelstrom.Message) error

// Config はノードの設定
type Config struct {
	ID         string // ノードのアドレス
	StartMsgID int    // 送信msg_idの開始値
	Workers    int    // ハンドラを並行実行するワーカー数（0でCPU数）
}

// Node はバスからリクエストを読み、ハンドラに振り分けて返信する
type Node struct {
	id       string
	in       bus.Inbound
	out      bus.Outbound
	enc      *protocol.Encoder
	workers  int
	policy   Policy
	handlers map[string]HandlerFunc

	store    store.Store
	metrics  *metrics.Metrics
	eventBus *events.Bus

	state atomic.Int32
}

// New はハンドラ未登録のノードを作成する
func New(config Config, policy Policy, in bus.Inbound, out bus.Outbound) *Node {
	return &Node{
		id:       config.ID,
		in:       in,
		out:      out,
		enc:      protocol.NewEncoder(config.ID, config.StartMsgID),
		workers:  config.Workers,
		policy:   policy,
		handlers: make(map[string]HandlerFunc),
		metrics:  metrics.New(),
	}
}

// Handle はメッセージ種別にハンドラを登録する
func (n *Node) Handle(typ string, h HandlerFunc) {
	n.handlers[typ] = h
}

// SetEventBus はイベントバスを設定する
func (n *Node) SetEventBus(b *events.Bus) {
	n.eventBus = b
}

// ID はノードIDを返す
func (n *Node) ID() string {
	return n.id
}

// State は現在の状態を返す
func (n *Node) State() State {
	return State(n.state.Load())
}

// Metrics はハンドラのメトリクスを返す
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// Store はノードのストアを返す。echoノードではnil
func (n *Node) Store() store.Store {
	return n.store
}

// Run はバスが閉じるか回復不能なエラーが起きるまでリクエストを処理する
//
// バスのクローズだけが正常終了で、実行中のハンドラを待ってからnilを返す。
func (n *Node) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(n.workers)
	pool.Start(runCtx)
	defer pool.Stop()

	// ハンドラの失敗でRecvの待ちを解く
	go func() {
		select {
		case <-pool.Failed():
			cancel()
		case <-runCtx.Done():
		}
	}()

	n.state.Store(int32(StateRunning))
	logger.Info(n.id, "Node running (workers: %d)", pool.NumWorkers())
	n.eventBus.Publish(events.NewNodeEvent(events.EventNodeStarted, n.id))

	for {
		msg, err := n.in.Recv(runCtx)
		switch {
		case err == nil:
		case errors.Is(err, bus.ErrClosed):
			return n.drain(pool)
		case pool.Err() != nil:
			return n.fail(pool.Err())
		case ctx.Err() != nil:
			return n.fail(ctx.Err())
		default:
			logger.Warn(n.id, "unreadable message: %v", err)
			return n.fail(fmt.Errorf("%w: %w", ErrUnexpectedMessage, err))
		}

		typ := msg.Type()
		h, ok := n.handlers[typ]
		if !ok {
			logger.Warn(n.id, "unexpected message from %s: %s", msg.Src, msg.Body)
			if n.policy == PolicyIgnore {
				continue
			}
			return n.fail(fmt.Errorf("%w: type %q from %s", ErrUnexpectedMessage, typ, msg.Src))
		}

		if !pool.Submit(func(ctx context.Context) error { return h(ctx, msg) }) {
			if err := pool.Err(); err != nil {
				return n.fail(err)
			}
			return n.fail(runCtx.Err())
		}
	}
}

func (n *Node) drain(pool *worker.Pool) error {
	n.state.Store(int32(StateDraining))
	logger.Info(n.id, "Bus closed, draining %d in-flight requests", pool.InFlight())
	n.eventBus.Publish(events.NewNodeEvent(events.EventNodeDraining, n.id))

	if err := pool.Drain(); err != nil {
		return n.fail(err)
	}

	logger.Info(n.id, "Node stopped")
	n.eventBus.Publish(events.NewNodeEvent(events.EventNodeStopped, n.id))
	return nil
}

func (n *Node) fail(err error) error {
	n.state.Store(int32(StateDraining))
	logger.Error(n.id, "Node failed: %v", err)
	n.eventBus.Publish(events.NewNodeFailedEvent(n.id, err))
	return err
}

// reply は成功応答を組み立てて送る
func (n *Node) reply(ctx context.Context, req maelstrom.Message, inReplyTo int, body protocol.Body) error {
	out, err := n.enc.Reply(req, inReplyTo, body)
	if err != nil {
		return err
	}
	if err := n.out.Send(ctx, out); err != nil {
		return fmt.Errorf("sending %s to %s: %w", body.Header().Type, req.Src, err)
	}
	return nil
}

// replyError はエラー応答を組み立てて送る
func (n *Node) replyError(ctx context.Context, req maelstrom.Message, inReplyTo int, rpcErr *maelstrom.RPCError) error {
	return n.reply(ctx, req, inReplyTo, protocol.NewErrorReply(rpcErr))
}

// Stats はノードの状態のスナップショット
type Stats struct {
	ID        string           `json:"id"`
	State     string           `json:"state"`
	StoreSize int              `json:"store_size"`
	Metrics   metrics.Snapshot `json:"metrics"`
}

// Stats は現在の状態を返す
func (n *Node) Stats() Stats {
	s := Stats{
		ID:      n.id,
		State:   n.State().String(),
		Metrics: n.metrics.Snapshot(),
	}
	if n.store != nil {
		s.StoreSize = n.store.Len()
	}
	return s
}

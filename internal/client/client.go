package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/cluster"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/metrics"
	"github.com/asg0451/crakv/internal/protocol"
	"github.com/asg0451/crakv/internal/store"
	"github.com/asg0451/crakv/internal/worker"
)

var (
	// ErrTimeout は返信がタイムアウトまでに届かなかったことを表す
	ErrTimeout = errors.New("request timed out")
	// ErrNotStarted はStart前にCallしたことを表す
	ErrNotStarted = errors.New("client not started")
)

// Config はClientの設定
type Config struct {
	ID             string        // ネットワーク上のアドレス
	NumWorkers     int           // ワーカー数（0でCPU数）
	WriteRatio     float64       // Write比率（0.0〜1.0）
	CasRatio       float64       // Cas比率（残りはRead）
	KeyRange       int           // キーの範囲（0〜KeyRange-1）
	ValueRange     int           // 値の範囲。小さいほどcasが成功しやすい
	RequestTimeout time.Duration // 1リクエストのタイムアウト
	RequestsLimit  uint64        // リクエスト上限（0で無制限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		ID:             "c1",
		NumWorkers:     0, // CPU数
		WriteRatio:     0.4,
		CasRatio:       0.2,
		KeyRange:       100,
		ValueRange:     5,
		RequestTimeout: 1 * time.Second,
		RequestsLimit:  0,
	}
}

// Client は負荷生成器
//
// クラスタのネットワークに1エンドポイントとして参加し、read/write/casを
// ランダムなノードへ送る。返信はin_reply_toで待ち合わせる。
type Client struct {
	config  Config
	cluster *cluster.Cluster
	pool    *worker.Pool
	metrics *metrics.Metrics
	enc     *protocol.Encoder

	endpoint *bus.Endpoint

	mu      sync.Mutex
	pending map[int]chan maelstrom.Message

	submitted atomic.Uint64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup // 受信ループ
	genWg   sync.WaitGroup // 生成ループ
}

// New は新しいClientを作成する
func New(c *cluster.Cluster, config Config) *Client {
	if config.ID == "" {
		config.ID = DefaultConfig().ID
	}
	if config.KeyRange <= 0 {
		config.KeyRange = DefaultConfig().KeyRange
	}
	if config.ValueRange <= 0 {
		config.ValueRange = DefaultConfig().ValueRange
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Client{
		config:  config,
		cluster: c,
		pool:    worker.NewPool(config.NumWorkers),
		metrics: metrics.New(),
		enc:     protocol.NewEncoder(config.ID, 1),
		pending: make(map[int]chan maelstrom.Message),
	}
}

// Start は負荷生成を開始する
func (c *Client) Start(ctx context.Context) {
	if c.running.Swap(true) {
		return // Already running
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	ep, err := c.cluster.Network().Join(c.config.ID)
	if err != nil {
		logger.Error(c.config.ID, "failed to join network: %v", err)
		return
	}
	c.mu.Lock()
	c.endpoint = ep
	c.mu.Unlock()

	c.pool.Start(c.ctx)

	logger.Info(c.config.ID, "Client started (workers: %d, write_ratio: %.1f%%, cas_ratio: %.1f%%)",
		c.pool.NumWorkers(), c.config.WriteRatio*100, c.config.CasRatio*100)

	c.wg.Add(1)
	go c.receiveReplies(ep)

	c.genWg.Add(1)
	go c.generateRequests()
}

// receiveReplies は返信を待ち合わせ中のリクエストへ振り分ける
func (c *Client) receiveReplies(ep *bus.Endpoint) {
	defer c.wg.Done()

	for {
		msg, err := ep.Recv(c.ctx)
		if err != nil {
			return
		}

		body, err := protocol.ReplyBody(msg)
		if err != nil {
			logger.Warn(c.config.ID, "undecodable reply from %s: %v", msg.Src, err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[body.InReplyTo]
		c.mu.Unlock()

		if !ok {
			logger.Debug(c.config.ID, "late reply from %s for msg %d", msg.Src, body.InReplyTo)
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// Call はdestへリクエストを送り、対応する返信を待つ
func (c *Client) Call(ctx context.Context, dest string, body protocol.Body) (maelstrom.Message, error) {
	c.mu.Lock()
	ep := c.endpoint
	c.mu.Unlock()
	if ep == nil {
		return maelstrom.Message{}, ErrNotStarted
	}

	msg, id, err := c.enc.Request(dest, body)
	if err != nil {
		return maelstrom.Message{}, err
	}

	ch := make(chan maelstrom.Message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if err := ep.Send(ctx, msg); err != nil {
		return maelstrom.Message{}, fmt.Errorf("failed to send %s to %s: %w", body.Header().Type, dest, err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return maelstrom.Message{}, ErrTimeout
		}
		return maelstrom.Message{}, ctx.Err()
	}
}

// generateRequests はリクエストを生成し続ける
func (c *Client) generateRequests() {
	defer c.genWg.Done()

	nodes := c.cluster.IDs()
	if len(nodes) == 0 {
		logger.Error(c.config.ID, "No nodes available in cluster")
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.config.RequestsLimit > 0 && c.submitted.Load() >= c.config.RequestsLimit {
			return
		}

		dest := nodes[rand.Intn(len(nodes))]
		if !c.pool.Submit(c.createJob(dest, c.randomRequest())) {
			return
		}
		c.submitted.Add(1)
	}
}

// randomRequest は設定の比率に従ってリクエストを1つ作る
func (c *Client) randomRequest() protocol.Body {
	key := store.MustValue(fmt.Sprintf("key-%d", rand.Intn(c.config.KeyRange)))
	value := func() store.Value { return store.MustValue(rand.Intn(c.config.ValueRange)) }

	r := rand.Float64()
	switch {
	case r < c.config.WriteRatio:
		return &protocol.WriteRequest{
			MessageBody: maelstrom.MessageBody{Type: protocol.TypeWrite},
			Key:         key,
			Value:       value(),
		}
	case r < c.config.WriteRatio+c.config.CasRatio:
		return &protocol.CasRequest{
			MessageBody: maelstrom.MessageBody{Type: protocol.TypeCas},
			Key:         key,
			From:        value(),
			To:          value(),
		}
	default:
		return &protocol.ReadRequest{
			MessageBody: maelstrom.MessageBody{Type: protocol.TypeRead},
			Key:         key,
		}
	}
}

// createJob はリクエストジョブを作成する
func (c *Client) createJob(dest string, body protocol.Body) worker.Job {
	return func(ctx context.Context) error {
		kind := body.Header().Type
		start := time.Now()

		reply, err := c.Call(ctx, dest, body)
		latency := time.Since(start)

		switch {
		case errors.Is(err, ErrTimeout):
			c.metrics.RecordFailure(kind, maelstrom.Timeout, latency)
		case err != nil:
			// 停止中のキャンセルやネットワークのクローズは計上しない
			logger.Debug(c.config.ID, "%s to %s abandoned: %v", kind, dest, err)
		default:
			rb, err := protocol.ReplyBody(reply)
			if err != nil || rb.Type == protocol.TypeError {
				c.metrics.RecordFailure(kind, rb.Code, latency)
			} else {
				c.metrics.RecordSuccess(kind, latency)
			}
		}
		return nil
	}
}

// Stop は負荷生成を停止する
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return // Not running
	}

	c.cancel()
	c.pool.Stop()
	c.genWg.Wait()
	c.wg.Wait()

	c.mu.Lock()
	ep := c.endpoint
	c.endpoint = nil
	c.mu.Unlock()
	if ep != nil {
		c.cluster.Network().Leave(ep.Addr())
	}

	logger.Info(c.config.ID, "Client stopped")
}

// Metrics はメトリクスを返す
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// IsRunning は実行中かどうかを返す
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// RunFor は指定時間だけ負荷生成を実行する
func (c *Client) RunFor(ctx context.Context, duration time.Duration) *metrics.Snapshot {
	c.Start(ctx)

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}

	c.Stop()

	snapshot := c.metrics.Snapshot()
	return &snapshot
}

// RunRequests は指定数のリクエストを実行し、全ての返信を待つ
func (c *Client) RunRequests(ctx context.Context, count uint64) *metrics.Snapshot {
	c.config.RequestsLimit = count
	c.Start(ctx)
	c.genWg.Wait()
	_ = c.pool.Drain()
	c.Stop()

	snapshot := c.metrics.Snapshot()
	return &snapshot
}

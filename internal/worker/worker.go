package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/asg0451/crakv/internal/logger"
)

// Job はワーカーが実行するジョブを表す
// エラーを返すとプールは失敗状態になり、以降のジョブは受け付けない
type Job func(ctx context.Context) error

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers  int // ワーカー数（0でCPU数）
	QueueFactor int // キューサイズ = NumWorkers * QueueFactor
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:  0,
		QueueFactor: 16,
	}
}

// Pool はゴルーチンのプールを管理する
type Pool struct {
	numWorkers int
	jobs       chan Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu       sync.Mutex
	started  bool
	draining bool

	// jobsをcloseする側とSubmitの送信を排他する
	sendMu sync.RWMutex

	inFlight atomic.Int64

	failOnce sync.Once
	failed   chan struct{}
	err      error
}

// NewPool は新しいワーカープールを作成する
// numWorkers が 0 以下の場合は CPU 数を使用
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	queueFactor := config.QueueFactor
	if queueFactor <= 0 {
		queueFactor = 16
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numWorkers*queueFactor),
		failed:     make(chan struct{}),
	}
}

// Start はワーカープールを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	logger.Debug("", "WorkerPool started with %d workers", p.numWorkers)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job(p.ctx); err != nil {
				p.fail(err)
			}
			p.inFlight.Add(-1)
		}
	}
}

func (p *Pool) fail(err error) {
	p.failOnce.Do(func() {
		p.err = err
		close(p.failed)
		p.cancel()
	})
}

// Submit はジョブをキューに入れる。キューが満杯ならブロックする
// 停止・失敗・ドレイン中はfalseを返す
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	if !p.started || p.draining {
		p.mu.Unlock()
		return false
	}
	ctx := p.ctx
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return false
	default:
	}

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	p.mu.Lock()
	draining := p.draining
	p.mu.Unlock()
	if draining {
		return false
	}

	p.inFlight.Add(1)
	select {
	case <-ctx.Done():
		p.inFlight.Add(-1)
		return false
	case p.jobs <- job:
		return true
	}
}

// Failed はジョブが失敗したときに閉じられるチャネルを返す
func (p *Pool) Failed() <-chan struct{} {
	return p.failed
}

// Err は最初に失敗したジョブのエラーを返す
func (p *Pool) Err() error {
	select {
	case <-p.failed:
		return p.err
	default:
		return nil
	}
}

// Drain は新規受付を止め、キュー済みと実行中のジョブの完了を待つ
func (p *Pool) Drain() error {
	p.mu.Lock()
	if !p.started || p.draining {
		p.mu.Unlock()
		p.wg.Wait()
		return p.Err()
	}
	p.draining = true
	p.mu.Unlock()

	p.sendMu.Lock()
	close(p.jobs)
	p.sendMu.Unlock()
	p.wg.Wait()
	return p.Err()
}

// Stop はワーカープールを停止する。キューに残ったジョブは破棄する
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logger.Debug("", "WorkerPool stopped")
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize は現在のキューサイズを返す
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// InFlight はキュー済みと実行中のジョブ数を返す
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

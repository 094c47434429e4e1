package bus

import (
	"context"
	"sync"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

// Ensure Pipe implements Conn
var _ Conn = (*Pipe)(nil)

// Pipe はチャネルによるインメモリのキュー
//
// Sendした順にRecvで取り出せる。Close後もバッファ済みのメッセージは
// 取り出せ、尽きた時点でErrClosedになる。
type Pipe struct {
	ch        chan maelstrom.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewPipe は新しいPipeを作成する
func NewPipe(buffer int) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		ch:   make(chan maelstrom.Message, buffer),
		done: make(chan struct{}),
	}
}

// Send はメッセージをキューに積む
func (p *Pipe) Send(ctx context.Context, msg maelstrom.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.ch <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv は次のメッセージを取り出す
func (p *Pipe) Recv(ctx context.Context) (maelstrom.Message, error) {
	select {
	case msg := <-p.ch:
		return msg, nil
	case <-p.done:
		select {
		case msg := <-p.ch:
			return msg, nil
		default:
			return maelstrom.Message{}, ErrClosed
		}
	case <-ctx.Done():
		return maelstrom.Message{}, ctx.Err()
	}
}

// Close はキューを閉じる。複数回呼んでもよい
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// Len はバッファに溜まっているメッセージ数を返す
func (p *Pipe) Len() int {
	return len(p.ch)
}

package bus

import (
	"context"
	"errors"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

var (
	// ErrClosed はバスが閉じられ、これ以上メッセージが届かないことを表す
	ErrClosed = errors.New("bus closed")
	// ErrMalformed はトランスポートがフレームをデコードできなかったことを表す
	ErrMalformed = errors.New("malformed frame")
)

// Inbound は受信キュー
type Inbound interface {
	// Recv は次のメッセージを返す。クローズ後はErrClosedを返す
	Recv(ctx context.Context) (maelstrom.Message, error)
}

// Outbound は送信キュー
type Outbound interface {
	Send(ctx context.Context, msg maelstrom.Message) error
}

// Conn は送受信の両方を備えた接続
type Conn interface {
	Inbound
	Outbound
}

package node

import (
	"context"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/protocol"
)

// NewEcho はechoに応答するだけのノードを作成する
// 未知のメッセージはログを出して無視する
func NewEcho(config Config, in bus.Inbound, out bus.Outbound) *Node {
	n := New(config, PolicyIgnore, in, out)
	n.Handle(protocol.TypeEcho, n.handleEcho)
	return n
}

func (n *Node) handleEcho(ctx context.Context, msg maelstrom.Message) error {
	start := time.Now()

	req, err := protocol.DecodeEcho(msg)
	if err != nil {
		return n.malformed(msg, err)
	}

	n.metrics.RecordSuccess(protocol.TypeEcho, time.Since(start))

	body := &protocol.EchoOK{
		MessageBody: maelstrom.MessageBody{Type: protocol.TypeEchoOK},
		Echo:        req.Echo,
	}
	return n.reply(ctx, msg, req.MsgID, body)
}

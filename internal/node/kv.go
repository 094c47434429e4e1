package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/protocol"
	"github.com/asg0451/crakv/internal/store"
)

// NewKV はread/write/casを処理するノードを作成する
// 未知のメッセージは致命的エラーとして扱う
func NewKV(config Config, s store.Store, in bus.Inbound, out bus.Outbound) *Node {
	n := New(config, PolicyFatal, in, out)
	n.store = s
	n.Handle(protocol.TypeRead, n.handleRead)
	n.Handle(protocol.TypeWrite, n.handleWrite)
	n.Handle(protocol.TypeCas, n.handleCas)
	return n
}

// handleRead は値を返す。未書き込みのキーはnullを返す
func (n *Node) handleRead(ctx context.Context, msg maelstrom.Message) error {
	start := time.Now()

	req, err := protocol.DecodeRead(msg)
	if err != nil {
		return n.malformed(msg, err)
	}

	value, ok := n.store.Get(req.Key)
	if !ok {
		value = store.Null
	}

	n.metrics.RecordSuccess(protocol.TypeRead, time.Since(start))

	body := &protocol.ReadOK{
		MessageBody: maelstrom.MessageBody{Type: protocol.TypeReadOK},
		Value:       value,
	}
	return n.reply(ctx, msg, req.MsgID, body)
}

// handleWrite は値を無条件に上書きする
func (n *Node) handleWrite(ctx context.Context, msg maelstrom.Message) error {
	start := time.Now()

	req, err := protocol.DecodeWrite(msg)
	if err != nil {
		return n.malformed(msg, err)
	}

	n.store.Insert(req.Key, req.Value)
	n.metrics.RecordSuccess(protocol.TypeWrite, time.Since(start))

	return n.reply(ctx, msg, req.MsgID, protocol.NewAck(protocol.TypeWriteOK))
}

// handleCas は現在値がfromの場合のみtoに置き換える
func (n *Node) handleCas(ctx context.Context, msg maelstrom.Message) error {
	start := time.Now()

	req, err := protocol.DecodeCas(msg)
	if err != nil {
		return n.malformed(msg, err)
	}

	var rpcErr *maelstrom.RPCError
	switch err := n.store.CompareAndSwap(req.Key, req.From, req.To); {
	case err == nil:
	case errors.Is(err, store.ErrKeyNotFound):
		rpcErr = protocol.ErrKeyDoesNotExist
	case errors.Is(err, store.ErrPreconditionFailed):
		rpcErr = protocol.ErrValueMismatch
	default:
		return err
	}

	if rpcErr != nil {
		logger.Debug(n.id, "cas %s rejected: %s", req.Key, rpcErr.Text)
		n.metrics.RecordFailure(protocol.TypeCas, rpcErr.Code, time.Since(start))
		return n.replyError(ctx, msg, req.MsgID, rpcErr)
	}

	n.metrics.RecordSuccess(protocol.TypeCas, time.Since(start))
	return n.reply(ctx, msg, req.MsgID, protocol.NewAck(protocol.TypeCasOK))
}

// malformed は既知の種別の壊れた本文を、未知のメッセージと同じ致命的エラーにする
func (n *Node) malformed(msg maelstrom.Message, err error) error {
	logger.Warn(n.id, "malformed message from %s: %s", msg.Src, msg.Body)
	return fmt.Errorf("%w: %w", ErrUnexpectedMessage, err)
}

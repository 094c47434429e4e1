package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

// Encoder は返信エンベロープを組み立てる
//
// 送信するメッセージには単調増加するmsg_idを振る。msg_idはomitemptyで
// 0だとワイヤ上で欠落と区別できないため、開始値は1以上に丸める。
type Encoder struct {
	src  string
	next atomic.Int64
}

// NewEncoder はsrcから送る返信のEncoderを作成する
func NewEncoder(src string, startMsgID int) *Encoder {
	if startMsgID < 1 {
		startMsgID = 1
	}
	e := &Encoder{src: src}
	e.next.Store(int64(startMsgID))
	return e
}

// Src は送信元アドレスを返す
func (e *Encoder) Src() string {
	return e.src
}

// NextMsgID は次のmsg_idを払い出す
func (e *Encoder) NextMsgID() int {
	return int(e.next.Add(1) - 1)
}

// Reply はreqへの返信を組み立てる
func (e *Encoder) Reply(req maelstrom.Message, inReplyTo int, body Body) (maelstrom.Message, error) {
	h := body.Header()
	h.MsgID = e.NextMsgID()
	h.InReplyTo = inReplyTo

	raw, err := json.Marshal(body)
	if err != nil {
		return maelstrom.Message{}, fmt.Errorf("failed to encode %s reply: %w", h.Type, err)
	}

	return maelstrom.Message{
		Src:  e.src,
		Dest: req.Src,
		Body: raw,
	}, nil
}

// Error はreqへのエラー返信を組み立てる
func (e *Encoder) Error(req maelstrom.Message, inReplyTo int, rpcErr *maelstrom.RPCError) (maelstrom.Message, error) {
	return e.Reply(req, inReplyTo, NewErrorReply(rpcErr))
}

// Request は新しいリクエストを組み立てる（クライアント側で使う）
func (e *Encoder) Request(dest string, body Body) (maelstrom.Message, int, error) {
	h := body.Header()
	h.MsgID = e.NextMsgID()

	raw, err := json.Marshal(body)
	if err != nil {
		return maelstrom.Message{}, 0, fmt.Errorf("failed to encode %s request: %w", h.Type, err)
	}

	return maelstrom.Message{
		Src:  e.src,
		Dest: dest,
		Body: raw,
	}, h.MsgID, nil
}

// CAS失敗時に返す定型のRPCエラー
var (
	ErrKeyDoesNotExist = maelstrom.NewRPCError(maelstrom.KeyDoesNotExist, TextKeyDoesNotExist)
	ErrValueMismatch   = maelstrom.NewRPCError(maelstrom.PreconditionFailed, TextValueMismatch)
)

// ReplyBody は受信した返信の共通部分をデコードする
func ReplyBody(msg maelstrom.Message) (maelstrom.MessageBody, error) {
	var body maelstrom.MessageBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return body, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return body, nil
}

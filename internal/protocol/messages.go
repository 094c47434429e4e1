package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/store"
)

// メッセージ種別
const (
	TypeInit    = "init"
	TypeInitOK  = "init_ok"
	TypeRead    = "read"
	TypeReadOK  = "read_ok"
	TypeWrite   = "write"
	TypeWriteOK = "write_ok"
	TypeCas     = "cas"
	TypeCasOK   = "cas_ok"
	TypeEcho    = "echo"
	TypeEchoOK  = "echo_ok"
	TypeError   = "error"
)

// CAS失敗時のエラーテキスト。ハーネスとの契約なので変更しない
const (
	TextKeyDoesNotExist = "Key does not exist"
	TextValueMismatch   = "Value does not match"
)

// ErrMalformed は既知の種別だが本文が不正なリクエストを表す
var ErrMalformed = errors.New("malformed request")

// Body は返信時にヘッダを書き込める本文
type Body interface {
	Header() *maelstrom.MessageBody
}

// ReadRequest は read リクエスト
type ReadRequest struct {
	maelstrom.MessageBody
	Key store.Key `json:"key"`
}

// WriteRequest は write リクエスト
type WriteRequest struct {
	maelstrom.MessageBody
	Key   store.Key   `json:"key"`
	Value store.Value `json:"value"`
}

// CasRequest は cas リクエスト
type CasRequest struct {
	maelstrom.MessageBody
	Key  store.Key   `json:"key"`
	From store.Value `json:"from"`
	To   store.Value `json:"to"`
}

// EchoRequest は echo リクエスト
type EchoRequest struct {
	maelstrom.MessageBody
	Echo json.RawMessage `json:"echo"`
}

// ReadOK は read の成功応答
type ReadOK struct {
	maelstrom.MessageBody
	Value store.Value `json:"value"`
}

// Ack は本文を持たない成功応答（write_ok, cas_ok, init_ok）
type Ack struct {
	maelstrom.MessageBody
}

// EchoOK は echo の応答
type EchoOK struct {
	maelstrom.MessageBody
	Echo json.RawMessage `json:"echo"`
}

// ErrorReply はエラー応答
type ErrorReply struct {
	maelstrom.MessageBody
}

func (b *ReadRequest) Header() *maelstrom.MessageBody  { return &b.MessageBody }
func (b *WriteRequest) Header() *maelstrom.MessageBody { return &b.MessageBody }
func (b *CasRequest) Header() *maelstrom.MessageBody   { return &b.MessageBody }
func (b *EchoRequest) Header() *maelstrom.MessageBody  { return &b.MessageBody }
func (b *ReadOK) Header() *maelstrom.MessageBody       { return &b.MessageBody }
func (b *Ack) Header() *maelstrom.MessageBody          { return &b.MessageBody }
func (b *EchoOK) Header() *maelstrom.MessageBody       { return &b.MessageBody }
func (b *ErrorReply) Header() *maelstrom.MessageBody   { return &b.MessageBody }

// NewAck は指定種別の空応答を作る
func NewAck(typ string) *Ack {
	return &Ack{MessageBody: maelstrom.MessageBody{Type: typ}}
}

// NewErrorReply はRPCエラーからエラー応答を作る
func NewErrorReply(err *maelstrom.RPCError) *ErrorReply {
	return &ErrorReply{MessageBody: maelstrom.MessageBody{
		Type: TypeError,
		Code: err.Code,
		Text: err.Text,
	}}
}

// DecodeRead は read 本文をデコードする
func DecodeRead(msg maelstrom.Message) (ReadRequest, error) {
	var req ReadRequest
	if err := decode(msg, TypeRead, &req); err != nil {
		return req, err
	}
	if req.Key.IsZero() {
		return req, missing(TypeRead, "key")
	}
	return req, nil
}

// DecodeWrite は write 本文をデコードする
func DecodeWrite(msg maelstrom.Message) (WriteRequest, error) {
	var req WriteRequest
	if err := decode(msg, TypeWrite, &req); err != nil {
		return req, err
	}
	switch {
	case req.Key.IsZero():
		return req, missing(TypeWrite, "key")
	case req.Value.IsZero():
		return req, missing(TypeWrite, "value")
	}
	return req, nil
}

// DecodeCas は cas 本文をデコードする
func DecodeCas(msg maelstrom.Message) (CasRequest, error) {
	var req CasRequest
	if err := decode(msg, TypeCas, &req); err != nil {
		return req, err
	}
	switch {
	case req.Key.IsZero():
		return req, missing(TypeCas, "key")
	case req.From.IsZero():
		return req, missing(TypeCas, "from")
	case req.To.IsZero():
		return req, missing(TypeCas, "to")
	}
	return req, nil
}

// DecodeEcho は echo 本文をデコードする
func DecodeEcho(msg maelstrom.Message) (EchoRequest, error) {
	var req EchoRequest
	err := decode(msg, TypeEcho, &req)
	return req, err
}

func decode(msg maelstrom.Message, typ string, body Body) error {
	if err := json.Unmarshal(msg.Body, body); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	if got := body.Header().Type; got != typ {
		return fmt.Errorf("%w: expected type %q, got %q", ErrMalformed, typ, got)
	}
	return nil
}

func missing(typ, field string) error {
	return fmt.Errorf("%w: %s: missing field %q", ErrMalformed, typ, field)
}

package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"

	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/logger"
)

// Identity はinitで割り当てられるノードの身元
type Identity struct {
	ID    string
	Peers []string
	// NextMsgID はinit_okの次に使えるmsg_id
	NextMsgID int
}

// Handshake は最初のinitメッセージを受け取りinit_okを返す
//
// init_okはstartMsgIDを消費し、ノード本体はIdentity.NextMsgIDから採番を続ける。
func Handshake(ctx context.Context, in bus.Inbound, out bus.Outbound, startMsgID int) (Identity, error) {
	msg, err := in.Recv(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("waiting for init: %w", err)
	}

	var body maelstrom.InitMessageBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return Identity{}, fmt.Errorf("%w: init: %v", ErrMalformed, err)
	}
	if body.Type != TypeInit {
		return Identity{}, fmt.Errorf("%w: expected %q, got %q", ErrMalformed, TypeInit, body.Type)
	}
	if body.NodeID == "" {
		return Identity{}, fmt.Errorf("%w: init: missing node_id", ErrMalformed)
	}

	id := Identity{ID: body.NodeID, Peers: body.NodeIDs}

	if startMsgID < 1 {
		startMsgID = 1
	}
	reply, err := NewEncoder(id.ID, startMsgID).Reply(msg, body.MsgID, NewAck(TypeInitOK))
	if err != nil {
		return Identity{}, err
	}
	if err := out.Send(ctx, reply); err != nil {
		return Identity{}, fmt.Errorf("sending init_ok: %w", err)
	}

	id.NextMsgID = startMsgID + 1
	logger.Info(id.ID, "initialized (peers: %v)", id.Peers)
	return id, nil
}

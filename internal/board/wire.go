package board

import (
	"context"

	"github.com/danmuck/meshboard/internal/observability"
	"github.com/danmuck/meshboard/internal/protocol"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/store"
)

// Sender transmits one board frame.
type Sender interface {
	SendText(ctx context.Context, text string, wantAck bool) (string, error)
}

// OutboundCommand builds the /msg or /reply carrying n under id, which is
// protocol.NewID for a first transmission or the note's network id on resend.
func OutboundCommand(n store.Note, id string) protocol.Command {
	color := ColorIndex(n.BgColor)
	if parent := n.ParentMsgID(); parent != "" {
		if id == protocol.NewID {
			return protocol.NewReply(parent, color, n.AuthorKey, n.Body)
		}
		return protocol.ResendReply(id, parent, color, n.AuthorKey, n.Body)
	}
	if id == protocol.NewID {
		return protocol.NewMessage(color, n.AuthorKey, n.Body)
	}
	return protocol.ResendMessage(id, color, n.AuthorKey, n.Body)
}

// DeferKey is the deferred task key of cmd; one pending task per kind and id.
func DeferKey(cmd protocol.Command) string {
	return string(cmd.Kind) + ":" + cmd.MsgID
}

// DeferCommand arms a fire-and-forget send of cmd on d.
func DeferCommand(d *session.Deferred, tx Sender, policy session.RetryPolicy, cmd protocol.Command) error {
	text, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	d.Schedule(DeferKey(cmd), policy, func(ctx context.Context) error {
		_, err := tx.SendText(ctx, text, false)
		observability.RecordRadioSend(string(cmd.Kind), err)
		return err
	})
	return nil
}

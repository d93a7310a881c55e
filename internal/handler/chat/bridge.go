package chat

import (
	"github.com/zhouzirui/docchat/internal/model/chat"
	"github.com/zhouzirui/docchat/internal/service/ai"
)

// Sender writes one frame to a client.
type Sender interface {
	Send(msg chat.Message) error
}

// Bridge turns chain progress events into outbound frames for one session.
// Each forwarded event is exactly one Send, in the order received.
type Bridge struct {
	sender          Sender
	forwardQuestion bool
}

// NewBridge binds a bridge to sender. forwardQuestion controls whether the
// condensed standalone question is shown to the client.
func NewBridge(sender Sender, forwardQuestion bool) *Bridge {
	return &Bridge{sender: sender, forwardQuestion: forwardQuestion}
}

// OnQuestion handles the condensed question.
func (b *Bridge) OnQuestion(text string) error {
	if !b.forwardQuestion {
		return nil
	}
	return b.sender.Send(chat.StreamMessage(text))
}

// OnToken forwards one answer fragment immediately.
func (b *Bridge) OnToken(text string) error {
	return b.sender.Send(chat.StreamMessage(text))
}

// Forward dispatches ev by kind. Unknown kinds are ignored.
func (b *Bridge) Forward(ev ai.Event) error {
	switch ev.Kind {
	case ai.EventQuestion:
		return b.OnQuestion(ev.Text)
	case ai.EventToken:
		return b.OnToken(ev.Text)
	default:
		return nil
	}
}

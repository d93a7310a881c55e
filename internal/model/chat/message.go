package chat

// Sender 标识消息发送方。
type Sender string

const (
	SenderBot Sender = "bot"
	SenderYou Sender = "you"
)

// MessageType 标识消息在会话协议中的阶段。
type MessageType string

const (
	TypeInit    MessageType = "init"
	TypeSummary MessageType = "summary"
	TypeStart   MessageType = "start"
	TypeStream  MessageType = "stream"
	TypeEnd     MessageType = "end"
	TypeError   MessageType = "error"
)

// Message is the only frame the server ever writes to a chat socket.
type Message struct {
	Sender  Sender      `json:"sender"`
	Message string      `json:"message"`
	Type    MessageType `json:"type"`
}

// InitMessage acknowledges that the document was received and indexing started.
func InitMessage() Message {
	return Message{Sender: SenderBot, Type: TypeInit}
}

// EchoMessage mirrors the user's question back to the client.
func EchoMessage(question string) Message {
	return Message{Sender: SenderYou, Message: question, Type: TypeStream}
}

// StartMessage opens a new answer bubble.
func StartMessage() Message {
	return Message{Sender: SenderBot, Type: TypeStart}
}

// StreamMessage carries one fragment of bot output.
func StreamMessage(fragment string) Message {
	return Message{Sender: SenderBot, Message: fragment, Type: TypeStream}
}

// EndMessage closes the current answer bubble.
func EndMessage() Message {
	return Message{Sender: SenderBot, Type: TypeEnd}
}

// ErrorMessage reports a failure with a user-safe description.
func ErrorMessage(description string) Message {
	return Message{Sender: SenderBot, Message: description, Type: TypeError}
}

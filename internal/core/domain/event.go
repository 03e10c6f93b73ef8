package domain

type EventType string

const (
	EventChatUpdated    EventType = "chat.updated"
	EventMessageAdded   EventType = "message.added"
	EventMessageDeleted EventType = "message.deleted"
	EventCallUpdated    EventType = "call.updated"
	EventCallCandidate  EventType = "call.candidate"
)

// Event is pushed to connected users. Payload is one of the domain types.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type MessageDeleted struct {
	ChatID    ChatID    `json:"chatId"`
	MessageID MessageID `json:"messageId"`
}

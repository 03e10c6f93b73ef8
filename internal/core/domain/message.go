package domain

import (
	"strings"
	"time"
)

const PhotoPreview = "📷 Photo"

type Message struct {
	ID       MessageID `json:"id"`
	ChatID   ChatID    `json:"chatId"`
	SenderID UserID    `json:"senderId"`
	Text     string    `json:"text"`
	Image    string    `json:"img,omitempty"`
	ImageKey string    `json:"-"`
	Date     time.Time `json:"date"`
}

func NewMessage(senderID UserID, chatID ChatID, text, image string, now time.Time) (*Message, error) {
	if strings.TrimSpace(text) == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	return &Message{
		ID:       NewMessageID(),
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
		Image:    image,
		Date:     now,
	}, nil
}

func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	if m.Image != "" {
		return PhotoPreview
	}
	return ""
}

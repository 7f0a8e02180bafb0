package commander

import (
	"context"
	"strings"
)

// Commander is the chat platform abstraction used by the bot: it delivers
// updates and lets the bot send and edit its own messages.
type Commander interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
}

// Update represents an incoming command/update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	MessageID int64   `json:"message_id"`
	Chat      Chat    `json:"chat"`
	From      *User   `json:"from,omitempty"`
	Text      *string `json:"text,omitempty"`
	Date      int64   `json:"date"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User identifies a message author. Its ID doubles as the private chat id
// for direct messages.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Name returns the handle shown in summaries: the username when set,
// otherwise the full name.
func (u *User) Name() string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "unknown"
	}
	return name
}

package domain

import (
	"fmt"
	"strings"
)

// ChatType is the wire discriminator for chats.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
	ChatTypeBot     ChatType = "bot"
)

func ParseChatType(raw string) (ChatType, error) {
	switch t := ChatType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ChatTypePrivate, ChatTypeGroup, ChatTypeChannel, ChatTypeBot:
		return t, nil
	default:
		return "", fmt.Errorf("unknown chat type %q", raw)
	}
}

// Wire form types mirror the JSON exchanged with the remote endpoints.
// Optional fields are pointers so that absence survives decoding.

type WireUser struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	IsOnline  *bool   `json:"is_online,omitempty"`
}

type WireLastMessage struct {
	ID        int64   `json:"id"`
	Text      *string `json:"text,omitempty"`
	CreatedAt string  `json:"created_at"`
	SenderID  int64   `json:"sender_id"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
}

type WireChat struct {
	ID          int64            `json:"id"`
	Type        ChatType         `json:"type"`
	Name        *string          `json:"name,omitempty"`
	Username    *string          `json:"username,omitempty"`
	Description *string          `json:"description,omitempty"`
	AvatarURL   *string          `json:"avatar_url,omitempty"`
	IsPinned    bool             `json:"is_pinned"`
	IsMuted     bool             `json:"is_muted"`
	Members     *int             `json:"members,omitempty"`
	UnreadCount int              `json:"unread_count"`
	LastMessage *WireLastMessage `json:"last_message,omitempty"`
}

type WireReaction struct {
	Emoji    string `json:"emoji"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

type WireMessage struct {
	ID          int64          `json:"id"`
	ChatID      int64          `json:"chat_id"`
	SenderID    int64          `json:"sender_id"`
	FirstName   string         `json:"first_name"`
	LastName    *string        `json:"last_name,omitempty"`
	Username    *string        `json:"username,omitempty"`
	AvatarURL   *string        `json:"avatar_url,omitempty"`
	Text        *string        `json:"text,omitempty"`
	MessageType string         `json:"message_type"`
	MediaURL    *string        `json:"media_url,omitempty"`
	MediaName   *string        `json:"media_name,omitempty"`
	IsEdited    bool           `json:"is_edited"`
	IsForwarded bool           `json:"is_forwarded"`
	CreatedAt   string         `json:"created_at"`
	Reactions   []WireReaction `json:"reactions,omitempty"`
}

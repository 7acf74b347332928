package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type User struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
	Online    bool    `json:"online"`
	Phone     *string `json:"phone,omitempty"`
}

func (u User) DisplayName() string {
	return JoinName(u.FirstName, u.LastName)
}

// JoinName concatenates first and optional last name. A missing last name
// contributes nothing.
func JoinName(first string, last *string) string {
	name := first
	if last != nil {
		name += " " + *last
	}
	return strings.TrimSpace(name)
}

type Chat struct {
	ID          int64    `json:"id"`
	Kind        ChatKind `json:"-"`
	Name        string   `json:"name"`
	Username    *string  `json:"username,omitempty"`
	Avatar      *string  `json:"avatar,omitempty"`
	Description *string  `json:"description,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
	Pinned      bool     `json:"pinned"`
	Muted       bool     `json:"muted"`
}

func (c Chat) Type() ChatType {
	if c.Kind == nil {
		return ""
	}
	return c.Kind.Type()
}

// Members is only meaningful for groups and channels.
func (c Chat) Members() (int, bool) {
	switch k := c.Kind.(type) {
	case GroupChat:
		return derefInt(k.Members)
	case ChannelChat:
		return derefInt(k.Members)
	case PrivateChat, BotChat:
		return 0, false
	}
	return 0, false
}

// Online is only meaningful for private chats.
func (c Chat) Online() (bool, bool) {
	if k, ok := c.Kind.(PrivateChat); ok && k.Online != nil {
		return *k.Online, true
	}
	return false, false
}

func (c Chat) MarshalJSON() ([]byte, error) {
	type plain Chat
	out := struct {
		plain
		Type    ChatType `json:"type"`
		Members *int     `json:"members,omitempty"`
		Online  *bool    `json:"online,omitempty"`
	}{plain: plain(c), Type: c.Type()}
	if n, ok := c.Members(); ok {
		out.Members = &n
	}
	if online, ok := c.Online(); ok {
		out.Online = &online
	}
	return json.Marshal(out)
}

type AttachmentType string

const (
	AttachmentPhoto   AttachmentType = "photo"
	AttachmentVideo   AttachmentType = "video"
	AttachmentFile    AttachmentType = "file"
	AttachmentVoice   AttachmentType = "voice"
	AttachmentSticker AttachmentType = "sticker"
)

type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name *string        `json:"name,omitempty"`
}

type Reaction struct {
	Emoji    string `json:"emoji"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

type Message struct {
	ID          int64        `json:"id"`
	ChatID      int64        `json:"chatId"`
	SenderID    int64        `json:"senderId"`
	SenderName  string       `json:"senderName"`
	Text        string       `json:"text"`
	MessageType string       `json:"messageType,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Edited      bool         `json:"edited,omitempty"`
	Forwarded   bool         `json:"forwarded,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
}

func derefInt(v *int) (int, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

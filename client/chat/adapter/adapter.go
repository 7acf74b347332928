// Package adapter converts wire form payloads into the domain form used by
// views. Every function here is pure.
package adapter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"msg_client/client/chat/domain"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
}

func User(w domain.WireUser) domain.User {
	u := domain.User{
		ID:        w.ID,
		Username:  w.Username,
		FirstName: w.FirstName,
		LastName:  cloneString(w.LastName),
		Bio:       cloneString(w.Bio),
		Avatar:    cloneString(w.AvatarURL),
		Phone:     cloneString(w.Phone),
	}
	if w.IsOnline != nil {
		u.Online = *w.IsOnline
	}
	return u
}

func Users(ws []domain.WireUser) []domain.User {
	if ws == nil {
		return nil
	}
	out := make([]domain.User, 0, len(ws))
	for _, w := range ws {
		out = append(out, User(w))
	}
	return out
}

// Chat maps one chat. A blank or missing name falls back to "Chat {id}".
// Types outside the closed set are rejected.
func Chat(w domain.WireChat) (domain.Chat, error) {
	kind, ok := domain.KindFor(w.Type, w.Members)
	if !ok {
		return domain.Chat{}, fmt.Errorf("chat %d: unknown type %q", w.ID, w.Type)
	}
	c := domain.Chat{
		ID:          w.ID,
		Kind:        kind,
		Name:        chatName(w),
		Username:    cloneString(w.Username),
		Avatar:      cloneString(w.AvatarURL),
		Description: cloneString(w.Description),
		UnreadCount: w.UnreadCount,
		Pinned:      w.IsPinned,
		Muted:       w.IsMuted,
	}
	if w.LastMessage != nil {
		last := lastMessage(w.ID, *w.LastMessage)
		c.LastMessage = &last
	}
	return c, nil
}

// Chats keeps server order. Chats that cannot be mapped are left out and
// reported in the returned error; the rest are still returned.
func Chats(ws []domain.WireChat) ([]domain.Chat, error) {
	out := make([]domain.Chat, 0, len(ws))
	var errs []error
	for _, w := range ws {
		c, err := Chat(w)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}

func Message(w domain.WireMessage) domain.Message {
	m := domain.Message{
		ID:          w.ID,
		ChatID:      w.ChatID,
		SenderID:    w.SenderID,
		SenderName:  domain.JoinName(w.FirstName, w.LastName),
		MessageType: w.MessageType,
		Timestamp:   ParseTimestamp(w.CreatedAt),
		Edited:      w.IsEdited,
		Forwarded:   w.IsForwarded,
	}
	if w.Text != nil {
		m.Text = *w.Text
	}
	if w.MediaURL != nil && strings.TrimSpace(*w.MediaURL) != "" {
		m.Attachments = []domain.Attachment{{
			Type: attachmentType(w.MessageType),
			URL:  *w.MediaURL,
			Name: cloneString(w.MediaName),
		}}
	}
	if w.Reactions != nil {
		m.Reactions = make([]domain.Reaction, 0, len(w.Reactions))
		for _, r := range w.Reactions {
			m.Reactions = append(m.Reactions, domain.Reaction{Emoji: r.Emoji, Count: r.Count, Selected: r.Selected})
		}
	}
	return m
}

func Messages(ws []domain.WireMessage) []domain.Message {
	out := make([]domain.Message, 0, len(ws))
	for _, w := range ws {
		out = append(out, Message(w))
	}
	return out
}

// ParseTimestamp accepts the layouts the endpoints are known to emit and
// returns the zero time for anything else.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func lastMessage(chatID int64, w domain.WireLastMessage) domain.Message {
	m := domain.Message{
		ID:         w.ID,
		ChatID:     chatID,
		SenderID:   w.SenderID,
		SenderName: domain.JoinName(w.FirstName, w.LastName),
		Timestamp:  ParseTimestamp(w.CreatedAt),
	}
	if w.Text != nil {
		m.Text = *w.Text
	}
	return m
}

func chatName(w domain.WireChat) string {
	if w.Name != nil {
		if name := strings.TrimSpace(*w.Name); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Chat %d", w.ID)
}

func attachmentType(messageType string) domain.AttachmentType {
	switch t := domain.AttachmentType(strings.ToLower(messageType)); t {
	case domain.AttachmentPhoto, domain.AttachmentVideo, domain.AttachmentVoice, domain.AttachmentSticker:
		return t
	default:
		return domain.AttachmentFile
	}
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

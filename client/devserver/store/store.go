package store

import (
	"context"
	"errors"
	"time"

	"msg_client/client/chat/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already exists")
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"

	SearchLimit = 20
)

// UserRecord is a user row including its password hash.
type UserRecord struct {
	domain.WireUser
	PasswordHash string
}

type NewUser struct {
	Username     string
	FirstName    string
	LastName     *string
	Phone        *string
	PasswordHash string
}

type NewChat struct {
	Type      domain.ChatType
	Name      *string
	Username  *string
	CreatedBy int64
	MemberIDs []int64
}

// Store is the devserver's persistence. Results use the wire shapes the
// client decodes, so handlers can return them directly.
type Store interface {
	CreateUser(ctx context.Context, user NewUser) (domain.WireUser, error)
	UserByUsername(ctx context.Context, username string) (UserRecord, error)
	UserByID(ctx context.Context, id int64) (domain.WireUser, error)
	SetOnline(ctx context.Context, id int64) error
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.WireUser, error)

	CreateChat(ctx context.Context, chat NewChat) (domain.WireChat, error)
	ListChats(ctx context.Context, userID int64) ([]domain.WireChat, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)

	// ListMessages returns a page counted from the newest message, ordered
	// oldest first. Reading the newest page marks the chat read.
	ListMessages(ctx context.Context, chatID, viewerID int64, limit, offset int) ([]domain.WireMessage, error)
	CreateMessage(ctx context.Context, chatID, senderID int64, text, messageType string) (domain.WireMessage, error)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

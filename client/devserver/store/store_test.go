package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"msg_client/client/chat/domain"
	"msg_client/client/common/infra/db"
)

// exerciseStore runs the same scenario against any Store.
func exerciseStore(t *testing.T, s Store, suffix string) {
	t.Helper()
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, NewUser{Username: "alice" + suffix, FirstName: "Alice", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser(alice) error = %v", err)
	}
	last := "Builder" + suffix
	bob, err := s.CreateUser(ctx, NewUser{Username: "bob" + suffix, FirstName: "Bob", LastName: &last, PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser(bob) error = %v", err)
	}
	if _, err := s.CreateUser(ctx, NewUser{Username: "alice" + suffix, FirstName: "Other", PasswordHash: "h"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrUsernameTaken", err)
	}

	rec, err := s.UserByUsername(ctx, "alice"+suffix)
	if err != nil || rec.ID != alice.ID || rec.PasswordHash != "h" {
		t.Errorf("UserByUsername() = %+v, %v", rec, err)
	}
	if _, err := s.UserByUsername(ctx, "nobody"+suffix); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByUsername(nobody) error = %v", err)
	}
	if err := s.SetOnline(ctx, bob.ID); err != nil {
		t.Errorf("SetOnline() error = %v", err)
	}

	chat, err := s.CreateChat(ctx, NewChat{Type: domain.ChatTypePrivate, CreatedBy: alice.ID, MemberIDs: []int64{bob.ID, alice.ID}})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if ok, _ := s.IsMember(ctx, chat.ID, bob.ID); !ok {
		t.Error("bob is not a member of the new chat")
	}

	chats, err := s.ListChats(ctx, bob.ID)
	if err != nil || len(chats) != 1 {
		t.Fatalf("ListChats() = %+v, %v", chats, err)
	}
	if chats[0].LastMessage != nil {
		t.Errorf("LastMessage = %+v, want nil for empty chat", chats[0].LastMessage)
	}
	if chats[0].Members == nil || *chats[0].Members != 2 {
		t.Errorf("Members = %v, want 2", chats[0].Members)
	}

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.CreateMessage(ctx, chat.ID, alice.ID, text, "text"); err != nil {
			t.Fatalf("CreateMessage(%s) error = %v", text, err)
		}
	}

	chats, _ = s.ListChats(ctx, bob.ID)
	if chats[0].UnreadCount != 3 {
		t.Errorf("bob unread = %d, want 3", chats[0].UnreadCount)
	}
	if chats[0].LastMessage == nil || *chats[0].LastMessage.Text != "three" || chats[0].LastMessage.FirstName != "Alice" {
		t.Errorf("LastMessage = %+v", chats[0].LastMessage)
	}

	page, err := s.ListMessages(ctx, chat.ID, bob.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(page) != 2 || *page[0].Text != "two" || *page[1].Text != "three" {
		t.Errorf("newest page = %+v, want [two three]", page)
	}
	older, _ := s.ListMessages(ctx, chat.ID, bob.ID, 2, 2)
	if len(older) != 1 || *older[0].Text != "one" {
		t.Errorf("older page = %+v, want [one]", older)
	}

	chats, _ = s.ListChats(ctx, bob.ID)
	if chats[0].UnreadCount != 0 {
		t.Errorf("bob unread after reading = %d, want 0", chats[0].UnreadCount)
	}

	users, err := s.SearchUsers(ctx, "builder"+suffix, SearchLimit)
	if err != nil || len(users) != 1 || users[0].ID != bob.ID {
		t.Errorf("SearchUsers(builder) = %+v, %v", users, err)
	}

	name := "Team" + suffix
	handle := "team" + suffix
	if _, err := s.CreateChat(ctx, NewChat{Type: domain.ChatTypeGroup, Name: &name, Username: &handle, CreatedBy: alice.ID}); err != nil {
		t.Fatalf("CreateChat(group) error = %v", err)
	}
	if _, err := s.CreateChat(ctx, NewChat{Type: domain.ChatTypeChannel, Name: &name, Username: &handle, CreatedBy: alice.ID}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate chat username error = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "")
}

func TestMemoryStore_ChatsOrderedByActivity(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	ctx := context.Background()
	alice, _ := s.CreateUser(ctx, NewUser{Username: "alice", FirstName: "Alice"})
	first, _ := s.CreateChat(ctx, NewChat{Type: domain.ChatTypePrivate, CreatedBy: alice.ID})
	second, _ := s.CreateChat(ctx, NewChat{Type: domain.ChatTypePrivate, CreatedBy: alice.ID})

	chats, _ := s.ListChats(ctx, alice.ID)
	if chats[0].ID != second.ID {
		t.Errorf("newest chat first: got %d, want %d", chats[0].ID, second.ID)
	}

	if _, err := s.CreateMessage(ctx, first.ID, alice.ID, "bump", "text"); err != nil {
		t.Fatal(err)
	}
	chats, _ = s.ListChats(ctx, alice.ID)
	if chats[0].ID != first.ID {
		t.Errorf("chat with latest message first: got %d, want %d", chats[0].ID, first.ID)
	}
	if chats[0].UnreadCount != 0 {
		t.Errorf("own messages counted as unread: %d", chats[0].UnreadCount)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DEVSERVER_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip: DEVSERVER_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Skipf("skip: postgres not available: %v", err)
	}
	s := NewPostgresStore(pool)
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	exerciseStore(t, s, time.Now().Format("150405.000000"))
}

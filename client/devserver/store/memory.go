package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"msg_client/client/chat/domain"
)

type memUser struct {
	rec      UserRecord
	lastSeen time.Time
}

type memChat struct {
	id          int64
	chatType    domain.ChatType
	name        *string
	username    *string
	description *string
	avatarURL   *string
	createdBy   int64
	createdAt   time.Time
	updatedAt   time.Time
	members     map[int64]string
	memberOrder []int64
}

type memMessage struct {
	id          int64
	chatID      int64
	senderID    int64
	text        string
	messageType string
	createdAt   time.Time
}

// MemoryStore keeps everything in process memory. IDs start at 1.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[int64]*memUser
	byName   map[string]int64
	chats    map[int64]*memChat
	messages map[int64][]memMessage
	lastRead map[int64]map[int64]int64
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:      now,
		users:    map[int64]*memUser{},
		byName:   map[string]int64{},
		chats:    map[int64]*memChat{},
		messages: map[int64][]memMessage{},
		lastRead: map[int64]map[int64]int64{},
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateUser(_ context.Context, user NewUser) (domain.WireUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[user.Username]; ok {
		return domain.WireUser{}, ErrUsernameTaken
	}
	online := true
	rec := UserRecord{
		WireUser: domain.WireUser{
			ID:        m.id(),
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Phone:     user.Phone,
			IsOnline:  &online,
		},
		PasswordHash: user.PasswordHash,
	}
	m.users[rec.ID] = &memUser{rec: rec, lastSeen: m.now()}
	m.byName[user.Username] = rec.ID
	return rec.WireUser, nil
}

func (m *MemoryStore) UserByUsername(_ context.Context, username string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[username]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return m.users[id].rec, nil
}

func (m *MemoryStore) UserByID(_ context.Context, id int64) (domain.WireUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.WireUser{}, ErrNotFound
	}
	return u.rec.WireUser, nil
}

func (m *MemoryStore) SetOnline(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	online := true
	u.rec.IsOnline = &online
	u.lastSeen = m.now()
	return nil
}

func (m *MemoryStore) SearchUsers(_ context.Context, query string, limit int) ([]domain.WireUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.WireUser, 0)
	for _, id := range ids {
		u := m.users[id].rec.WireUser
		last := ""
		if u.LastName != nil {
			last = *u.LastName
		}
		if strings.Contains(u.Username, query) ||
			strings.Contains(strings.ToLower(u.FirstName), query) ||
			strings.Contains(strings.ToLower(last), query) {
			// search results never carry online state or phone
			u.IsOnline = nil
			u.Phone = nil
			out = append(out, u)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateChat(_ context.Context, chat NewChat) (domain.WireChat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chat.Username != nil {
		for _, c := range m.chats {
			if c.username != nil && *c.username == *chat.Username {
				return domain.WireChat{}, ErrUsernameTaken
			}
		}
	}
	now := m.now()
	c := &memChat{
		id:        m.id(),
		chatType:  chat.Type,
		name:      chat.Name,
		username:  chat.Username,
		createdBy: chat.CreatedBy,
		createdAt: now,
		updatedAt: now,
		members:   map[int64]string{},
	}
	c.addMember(chat.CreatedBy, RoleOwner)
	for _, id := range chat.MemberIDs {
		if id != chat.CreatedBy {
			c.addMember(id, RoleMember)
		}
	}
	m.chats[c.id] = c
	return domain.WireChat{ID: c.id, Type: c.chatType, Name: c.name, Username: c.username}, nil
}

func (c *memChat) addMember(userID int64, role string) {
	if _, ok := c.members[userID]; ok {
		return
	}
	c.members[userID] = role
	c.memberOrder = append(c.memberOrder, userID)
}

func (m *MemoryStore) ListChats(_ context.Context, userID int64) ([]domain.WireChat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mine := make([]*memChat, 0)
	for _, c := range m.chats {
		if _, ok := c.members[userID]; ok {
			mine = append(mine, c)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].updatedAt.Equal(mine[j].updatedAt) {
			return mine[i].updatedAt.After(mine[j].updatedAt)
		}
		return mine[i].id > mine[j].id
	})

	out := make([]domain.WireChat, 0, len(mine))
	for _, c := range mine {
		members := len(c.members)
		wire := domain.WireChat{
			ID:          c.id,
			Type:        c.chatType,
			Name:        c.name,
			Username:    c.username,
			Description: c.description,
			AvatarURL:   c.avatarURL,
			Members:     &members,
			UnreadCount: m.unreadLocked(c.id, userID),
		}
		if msgs := m.messages[c.id]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			text := last.text
			wire.LastMessage = &domain.WireLastMessage{
				ID:        last.id,
				Text:      &text,
				CreatedAt: FormatTime(last.createdAt),
				SenderID:  last.senderID,
			}
			if sender, ok := m.users[last.senderID]; ok {
				wire.LastMessage.FirstName = sender.rec.FirstName
				wire.LastMessage.LastName = sender.rec.LastName
			}
		}
		out = append(out, wire)
	}
	return out, nil
}

func (m *MemoryStore) unreadLocked(chatID, userID int64) int {
	seen := m.lastRead[chatID][userID]
	n := 0
	for _, msg := range m.messages[chatID] {
		if msg.senderID != userID && msg.id > seen {
			n++
		}
	}
	return n
}

func (m *MemoryStore) IsMember(_ context.Context, chatID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return false, nil
	}
	_, member := c.members[userID]
	return member, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, chatID, viewerID int64, limit, offset int) ([]domain.WireMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[chatID]
	end := len(all) - offset
	if end <= 0 {
		return []domain.WireMessage{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.WireMessage, 0, end-start)
	for _, msg := range all[start:end] {
		out = append(out, m.wireMessageLocked(msg))
	}
	if offset == 0 && len(all) > 0 {
		if m.lastRead[chatID] == nil {
			m.lastRead[chatID] = map[int64]int64{}
		}
		m.lastRead[chatID][viewerID] = all[len(all)-1].id
	}
	return out, nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, chatID, senderID int64, text, messageType string) (domain.WireMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return domain.WireMessage{}, ErrNotFound
	}
	msg := memMessage{
		id:          m.id(),
		chatID:      chatID,
		senderID:    senderID,
		text:        text,
		messageType: messageType,
		createdAt:   m.now(),
	}
	m.messages[chatID] = append(m.messages[chatID], msg)
	c.updatedAt = msg.createdAt
	return m.wireMessageLocked(msg), nil
}

func (m *MemoryStore) wireMessageLocked(msg memMessage) domain.WireMessage {
	text := msg.text
	wire := domain.WireMessage{
		ID:          msg.id,
		ChatID:      msg.chatID,
		SenderID:    msg.senderID,
		Text:        &text,
		MessageType: msg.messageType,
		CreatedAt:   FormatTime(msg.createdAt),
		Reactions:   []domain.WireReaction{},
	}
	if u, ok := m.users[msg.senderID]; ok {
		username := u.rec.Username
		wire.FirstName = u.rec.FirstName
		wire.LastName = u.rec.LastName
		wire.Username = &username
		wire.AvatarURL = u.rec.AvatarURL
	}
	return wire
}

package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"msg_client/client/chat/adapter"
	"msg_client/client/chat/domain"
	commonlog "msg_client/client/common/log"
	"msg_client/client/common/metrics"
)

const (
	DefaultChatRefreshInterval    = 5 * time.Second
	DefaultMessageRefreshInterval = 3 * time.Second

	opChats    = "chats"
	opMessages = "messages"
)

// ChatAPI is the remote surface the synchronizer drives. *TelegramAPI
// satisfies it.
type ChatAPI interface {
	Register(ctx context.Context, req RegisterRequest) (domain.WireUser, error)
	Login(ctx context.Context, username, password string) (domain.WireUser, error)
	VerifyToken(ctx context.Context) *domain.WireUser
	Logout(ctx context.Context) error
	GetChats(ctx context.Context) ([]domain.WireChat, error)
	GetMessages(ctx context.Context, chatID int64, limit, offset int) ([]domain.WireMessage, error)
	SendMessage(ctx context.Context, chatID int64, text, messageType string) (domain.WireMessage, error)
	CreateChat(ctx context.Context, req CreateChatRequest) (domain.WireChat, error)
	SearchUsers(ctx context.Context, query string) ([]domain.WireUser, error)
}

type State int

const (
	StateUnauthenticated State = iota
	StateIdle
	StateChatSelected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateIdle:
		return "authenticated"
	case StateChatSelected:
		return "chat_selected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) Authenticated() bool {
	return s == StateIdle || s == StateChatSelected
}

type SyncConfig struct {
	ChatRefreshInterval    time.Duration
	MessageRefreshInterval time.Duration
	MessagePageSize        int
	// RestoreChatID reselects a chat after a successful silent verify.
	RestoreChatID int64
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.ChatRefreshInterval <= 0 {
		c.ChatRefreshInterval = DefaultChatRefreshInterval
	}
	if c.MessageRefreshInterval <= 0 {
		c.MessageRefreshInterval = DefaultMessageRefreshInterval
	}
	if c.MessagePageSize <= 0 {
		c.MessagePageSize = DefaultMessageLimit
	}
	return c
}

// FailurePolicy decides what happens to a failed background refresh.
type FailurePolicy func(op string, err error)

// DegradeGracefully logs and counts the failure and keeps whatever data was
// already displayed. The timer keeps running.
func DegradeGracefully(op string, err error) {
	metrics.RefreshFailuresTotal.WithLabelValues(op).Inc()
	commonlog.Warnf("refresh %s failed, keeping previous data: %v", op, err)
}

// Snapshot is a read-only copy of synchronizer state. Version grows with
// every applied change.
type Snapshot struct {
	Version        uint64                     `json:"version"`
	State          State                      `json:"state"`
	User           *domain.User               `json:"user,omitempty"`
	Chats          []domain.Chat              `json:"chats"`
	Messages       map[int64][]domain.Message `json:"messages"`
	SelectedChatID int64                      `json:"selectedChatId,omitempty"`
}

type TimerStatus struct {
	ChatRefresh    bool  `json:"chatRefresh"`
	MessageRefresh bool  `json:"messageRefresh"`
	MessageChatID  int64 `json:"messageChatId,omitempty"`
}

type SyncOption func(*Synchronizer)

func WithScheduler(scheduler Scheduler) SyncOption {
	return func(s *Synchronizer) { s.scheduler = scheduler }
}

func WithFailurePolicy(policy FailurePolicy) SyncOption {
	return func(s *Synchronizer) { s.failure = policy }
}

func WithEventSink(sink EventSink) SyncOption {
	return func(s *Synchronizer) { s.sinks = append(s.sinks, sink) }
}

func WithListener(fn func(Snapshot)) SyncOption {
	return func(s *Synchronizer) { s.listeners = append(s.listeners, fn) }
}

// Synchronizer owns the session state machine, the chat and message caches
// and the refresh timers. Other components only see Snapshots.
type Synchronizer struct {
	api       ChatAPI
	cfg       SyncConfig
	scheduler Scheduler
	failure   FailurePolicy
	sinks     []EventSink

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	state    State
	user     *domain.User
	chats    []domain.Chat
	messages map[int64][]domain.Message
	selected int64
	version  uint64
	// epoch changes on every login and logout; results fetched under an
	// older epoch are dropped.
	epoch        uint64
	ticket       uint64
	chatsApplied uint64
	msgsApplied  map[int64]uint64
	chatTask     *Task
	msgTask      *Task

	notifyMu     sync.Mutex
	listeners    []func(Snapshot)
	lastNotified uint64
}

func NewSynchronizer(api ChatAPI, cfg SyncConfig, opts ...SyncOption) *Synchronizer {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		api:         api,
		cfg:         cfg.withDefaults(),
		scheduler:   NewScheduler(),
		failure:     DegradeGracefully,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		messages:    map[int64][]domain.Message{},
		msgsApplied: map[int64]uint64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a listener for applied changes. Listeners run on the
// goroutine that applied the change and must not block.
func (s *Synchronizer) OnChange(fn func(Snapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start performs the silent cold start verification.
func (s *Synchronizer) Start(ctx context.Context) State {
	wire := s.api.VerifyToken(ctx)
	if wire == nil {
		commonlog.Infof("cold start: no valid session")
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.mu.Unlock()
		return StateUnauthenticated
	}
	s.enterAuthenticated(ctx, *wire)
	if s.cfg.RestoreChatID > 0 {
		if err := s.SelectChat(ctx, s.cfg.RestoreChatID); err != nil {
			commonlog.Warnf("restore chat %d: %v", s.cfg.RestoreChatID, err)
		}
	}
	return s.State()
}

func (s *Synchronizer) Login(ctx context.Context, username, password string) (domain.User, error) {
	wire, err := s.api.Login(ctx, username, password)
	if err != nil {
		return domain.User{}, err
	}
	return s.enterAuthenticated(ctx, wire), nil
}

func (s *Synchronizer) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	wire, err := s.api.Register(ctx, req)
	if err != nil {
		return domain.User{}, err
	}
	return s.enterAuthenticated(ctx, wire), nil
}

func (s *Synchronizer) enterAuthenticated(ctx context.Context, wire domain.WireUser) domain.User {
	user := adapter.User(wire)

	s.mu.Lock()
	s.stopTasksLocked()
	s.epoch++
	s.state = StateIdle
	s.user = &user
	s.resetDataLocked()
	s.chatTask = s.scheduler.Every(s.rootCtx, opChats, s.cfg.ChatRefreshInterval, func(tickCtx context.Context) {
		s.refreshChats(tickCtx)
	})
	snap := s.changedLocked()
	s.mu.Unlock()

	commonlog.Infof("session started user_id=%d", user.ID)
	s.notify(snap)
	s.publish(ctx, Event{Type: EventSessionStarted, UserID: user.ID})
	s.refreshChats(ctx)
	return user
}

// Logout stops every timer, drops cached data and clears the token.
func (s *Synchronizer) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.stopTasksLocked()
	s.epoch++
	var userID int64
	if s.user != nil {
		userID = s.user.ID
	}
	s.state = StateUnauthenticated
	s.user = nil
	s.resetDataLocked()
	snap := s.changedLocked()
	s.mu.Unlock()

	err := s.api.Logout(ctx)
	commonlog.Infof("session ended user_id=%d", userID)
	s.notify(snap)
	s.publish(ctx, Event{Type: EventSessionEnded, UserID: userID})
	return err
}

// SelectChat replaces the message timer with one scoped to chatID and loads
// its messages right away. chatID <= 0 clears the selection.
func (s *Synchronizer) SelectChat(ctx context.Context, chatID int64) error {
	if chatID <= 0 {
		return s.ClearSelection()
	}
	s.mu.Lock()
	if !s.state.Authenticated() {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.msgTask.Stop()
	s.selected = chatID
	s.state = StateChatSelected
	s.msgTask = s.scheduler.Every(s.rootCtx, opMessages, s.cfg.MessageRefreshInterval, func(tickCtx context.Context) {
		s.refreshMessages(tickCtx, chatID)
	})
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.refreshMessages(ctx, chatID)
	return nil
}

func (s *Synchronizer) ClearSelection() error {
	s.mu.Lock()
	if !s.state.Authenticated() {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.msgTask.Stop()
	s.msgTask = nil
	s.selected = 0
	s.state = StateIdle
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// SendMessage posts to the selected chat, then refreshes that chat's
// messages and the chat list before returning so the sender sees the
// message immediately.
func (s *Synchronizer) SendMessage(ctx context.Context, text, messageType string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	s.mu.Lock()
	state, chatID := s.state, s.selected
	var userID int64
	if s.user != nil {
		userID = s.user.ID
	}
	s.mu.Unlock()
	if !state.Authenticated() {
		return domain.Message{}, ErrNotAuthenticated
	}
	if chatID == 0 {
		return domain.Message{}, ErrNoChatSelected
	}

	wire, err := s.api.SendMessage(ctx, chatID, text, messageType)
	if err != nil {
		return domain.Message{}, err
	}
	sent := adapter.Message(wire)
	s.publish(ctx, Event{Type: EventMessageSent, UserID: userID, ChatID: chatID, MessageID: sent.ID})

	s.refreshMessages(ctx, chatID)
	s.refreshChats(ctx)
	return sent, nil
}

// CreateChat creates a chat and refreshes the list so it shows up at once.
func (s *Synchronizer) CreateChat(ctx context.Context, req CreateChatRequest) (domain.Chat, error) {
	if !s.State().Authenticated() {
		return domain.Chat{}, ErrNotAuthenticated
	}
	wire, err := s.api.CreateChat(ctx, req)
	if err != nil {
		return domain.Chat{}, err
	}
	chat, err := adapter.Chat(wire)
	if err != nil {
		return domain.Chat{}, &FetchError{Op: "create_chat", Message: MsgCreateChatFailed, Err: err}
	}
	s.refreshChats(ctx)
	return chat, nil
}

func (s *Synchronizer) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	if !s.State().Authenticated() {
		return nil, ErrNotAuthenticated
	}
	wire, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	return adapter.Users(wire), nil
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) Timers() TimerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := TimerStatus{
		ChatRefresh:    !s.chatTask.Stopped(),
		MessageRefresh: !s.msgTask.Stopped(),
	}
	if status.MessageRefresh {
		status.MessageChatID = s.selected
	}
	return status
}

// Close stops every timer. Cached state and the token are left as is.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.stopTasksLocked()
	s.mu.Unlock()
	s.rootCancel()
}

func (s *Synchronizer) refreshChats(ctx context.Context) {
	s.mu.Lock()
	if !s.state.Authenticated() {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	ticket := s.nextTicketLocked()
	s.mu.Unlock()

	wire, err := s.api.GetChats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.failure(opChats, err)
		}
		return
	}
	chats, mapErr := adapter.Chats(wire)
	if mapErr != nil {
		commonlog.Warnf("chat list contained unmappable chats: %v", mapErr)
	}

	s.mu.Lock()
	if epoch != s.epoch || !s.state.Authenticated() || ticket <= s.chatsApplied {
		s.mu.Unlock()
		s.dropStale(opChats, ticket)
		return
	}
	s.chatsApplied = ticket
	s.chats = chats
	var userID int64
	if s.user != nil {
		userID = s.user.ID
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.publish(ctx, Event{Type: EventChatsRefreshed, UserID: userID, Count: len(chats)})
}

func (s *Synchronizer) refreshMessages(ctx context.Context, chatID int64) {
	s.mu.Lock()
	if s.state != StateChatSelected || s.selected != chatID {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	ticket := s.nextTicketLocked()
	s.mu.Unlock()

	wire, err := s.api.GetMessages(ctx, chatID, s.cfg.MessagePageSize, 0)
	if err != nil {
		if ctx.Err() == nil {
			s.failure(opMessages, err)
		}
		return
	}
	msgs := adapter.Messages(wire)

	s.mu.Lock()
	if epoch != s.epoch || s.state != StateChatSelected || s.selected != chatID || ticket <= s.msgsApplied[chatID] {
		s.mu.Unlock()
		s.dropStale(opMessages, ticket)
		return
	}
	s.msgsApplied[chatID] = ticket
	s.messages[chatID] = msgs
	var userID int64
	if s.user != nil {
		userID = s.user.ID
	}
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.publish(ctx, Event{Type: EventMessagesRefreshed, UserID: userID, ChatID: chatID, Count: len(msgs)})
}

func (s *Synchronizer) dropStale(op string, ticket uint64) {
	metrics.StaleResultsTotal.WithLabelValues(op).Inc()
	commonlog.Debugf("dropping stale %s result ticket=%d", op, ticket)
}

func (s *Synchronizer) nextTicketLocked() uint64 {
	s.ticket++
	return s.ticket
}

func (s *Synchronizer) stopTasksLocked() {
	s.chatTask.Stop()
	s.msgTask.Stop()
	s.chatTask = nil
	s.msgTask = nil
}

func (s *Synchronizer) resetDataLocked() {
	s.chats = nil
	s.messages = map[int64][]domain.Message{}
	s.msgsApplied = map[int64]uint64{}
	s.chatsApplied = s.ticket
	s.selected = 0
}

func (s *Synchronizer) changedLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

// snapshotLocked returns a deep copy; consumers may modify it freely.
func (s *Synchronizer) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:        s.version,
		State:          s.state,
		Chats:          domain.CloneChats(s.chats),
		Messages:       make(map[int64][]domain.Message, len(s.messages)),
		SelectedChatID: s.selected,
	}
	if s.user != nil {
		u := s.user.Clone()
		snap.User = &u
	}
	for chatID, msgs := range s.messages {
		snap.Messages[chatID] = domain.CloneMessages(msgs)
	}
	return snap
}

// notify delivers snapshots in version order; an older snapshot that loses
// the race to a newer one is skipped.
func (s *Synchronizer) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.lastNotified {
		return
	}
	s.lastNotified = snap.Version
	for _, fn := range s.listeners {
		fn(snap)
	}
}

func (s *Synchronizer) publish(ctx context.Context, event Event) {
	if len(s.sinks) == 0 {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	// events outlive a cancelled tick
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.Publish(pubCtx, event); err != nil {
			commonlog.Warnf("publish %s event: %v", event.Type, err)
		}
	}
}

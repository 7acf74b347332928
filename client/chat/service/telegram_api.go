package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"msg_client/client/chat/domain"
	"msg_client/client/chat/session"
	"msg_client/client/common/infra/httpjson"
	commonlog "msg_client/client/common/log"
	"msg_client/client/common/metrics"
)

const (
	DefaultMessageLimit = 50
	DefaultMessageType  = "text"
)

type TelegramAPIConfig struct {
	AuthURL string
	DataURL string
	Timeout time.Duration
	// HTTPClient overrides the transport built from Timeout.
	HTTPClient *http.Client
}

// TelegramAPI is the only component that talks to the remote endpoints.
type TelegramAPI struct {
	auth    *httpjson.Client
	data    *httpjson.Client
	session *session.Session
}

type RegisterRequest struct {
	Username  string
	Password  string
	FirstName string
	LastName  *string
	Phone     *string
}

type CreateChatRequest struct {
	Type      domain.ChatType
	Name      *string
	Username  *string
	MemberIDs []int64
}

type authResponse struct {
	Token string          `json:"token"`
	User  domain.WireUser `json:"user"`
}

func NewTelegramAPI(cfg TelegramAPIConfig, sess *session.Session) *TelegramAPI {
	newClient := func(endpoint string) *httpjson.Client {
		if cfg.HTTPClient != nil {
			return httpjson.NewClientWithHTTP(endpoint, cfg.HTTPClient)
		}
		return httpjson.NewClient(endpoint, cfg.Timeout)
	}
	return &TelegramAPI{
		auth:    newClient(cfg.AuthURL),
		data:    newClient(cfg.DataURL),
		session: sess,
	}
}

func (a *TelegramAPI) Session() *session.Session {
	return a.session
}

func (a *TelegramAPI) Register(ctx context.Context, req RegisterRequest) (domain.WireUser, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return domain.WireUser{}, &AuthError{Op: "register", Message: "Username and password are required"}
	}
	payload := map[string]any{
		"action":     "register",
		"username":   req.Username,
		"password":   req.Password,
		"first_name": req.FirstName,
	}
	if req.LastName != nil {
		payload["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		payload["phone"] = *req.Phone
	}
	return a.authenticate(ctx, "register", payload, MsgRegistrationFailed)
}

func (a *TelegramAPI) Login(ctx context.Context, username, password string) (domain.WireUser, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return domain.WireUser{}, &AuthError{Op: "login", Message: "Username and password are required"}
	}
	payload := map[string]any{
		"action":   "login",
		"username": username,
		"password": password,
	}
	return a.authenticate(ctx, "login", payload, MsgLoginFailed)
}

func (a *TelegramAPI) authenticate(ctx context.Context, op string, payload map[string]any, fallback string) (domain.WireUser, error) {
	started := time.Now()
	var resp authResponse
	// register and login never carry a bearer token
	err := a.auth.Do(ctx, httpjson.Request{Method: http.MethodPost, Body: payload}, &resp)
	metrics.ObserveAPI(op, started, err)
	if err != nil {
		commonlog.Warnf("%s failed: %v", op, err)
		return domain.WireUser{}, newAuthError(op, err, fallback)
	}
	if strings.TrimSpace(resp.Token) == "" {
		return domain.WireUser{}, &AuthError{Op: op, Status: http.StatusOK, Message: fallback}
	}
	if err := a.session.SetToken(ctx, resp.Token); err != nil {
		commonlog.Errorf("persist token after %s: %v", op, err)
	}
	commonlog.Infof("%s succeeded user_id=%d", op, resp.User.ID)
	return resp.User, nil
}

// VerifyToken never returns an error. A nil user means "not authenticated".
// Any failure response clears the held token; a transport failure leaves it
// in place so the next start can retry.
func (a *TelegramAPI) VerifyToken(ctx context.Context) *domain.WireUser {
	token, ok := a.session.Token()
	if !ok {
		return nil
	}
	started := time.Now()
	var resp struct {
		User *domain.WireUser `json:"user"`
	}
	err := a.auth.Do(ctx, httpjson.Request{
		Method:      http.MethodPost,
		Body:        map[string]any{"action": "verify"},
		BearerToken: token,
	}, &resp)
	metrics.ObserveAPI("verify", started, err)

	var statusErr *httpjson.StatusError
	switch {
	case err == nil && resp.User != nil:
		return resp.User
	case err == nil:
		commonlog.Warnf("verify returned no user, clearing token")
	case errors.As(err, &statusErr):
		commonlog.Infof("verify rejected status=%d message=%q, clearing token", statusErr.Status, statusErr.Message)
	case ctx.Err() != nil || isTransportError(err):
		commonlog.Warnf("verify unreachable, keeping token: %v", err)
		return nil
	default:
		commonlog.Warnf("verify failed, clearing token: %v", err)
	}
	if clearErr := a.session.ClearToken(ctx); clearErr != nil {
		commonlog.Errorf("clear token after failed verify: %v", clearErr)
	}
	return nil
}

// Logout drops the held token.
func (a *TelegramAPI) Logout(ctx context.Context) error {
	return a.session.ClearToken(ctx)
}

func (a *TelegramAPI) GetChats(ctx context.Context) ([]domain.WireChat, error) {
	var resp struct {
		Chats []domain.WireChat `json:"chats"`
	}
	if err := a.dataCall(ctx, "chats", http.MethodGet, url.Values{"path": {"chats"}}, nil, &resp, MsgFetchChatsFailed); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

func (a *TelegramAPI) GetMessages(ctx context.Context, chatID int64, limit, offset int) ([]domain.WireMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{
		"path":   {"messages/" + strconv.FormatInt(chatID, 10)},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	var resp struct {
		Messages []domain.WireMessage `json:"messages"`
	}
	if err := a.dataCall(ctx, "messages", http.MethodGet, query, nil, &resp, MsgFetchMsgsFailed); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *TelegramAPI) SendMessage(ctx context.Context, chatID int64, text, messageType string) (domain.WireMessage, error) {
	if chatID <= 0 {
		return domain.WireMessage{}, &FetchError{Op: "send", Message: "chat_id is required"}
	}
	if messageType == "" {
		messageType = DefaultMessageType
	}
	body := map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"message_type": messageType,
	}
	var resp struct {
		Message domain.WireMessage `json:"message"`
	}
	if err := a.dataCall(ctx, "send", http.MethodPost, url.Values{"path": {"send"}}, body, &resp, MsgSendFailed); err != nil {
		return domain.WireMessage{}, err
	}
	return resp.Message, nil
}

func (a *TelegramAPI) CreateChat(ctx context.Context, req CreateChatRequest) (domain.WireChat, error) {
	memberIDs := req.MemberIDs
	if memberIDs == nil {
		memberIDs = []int64{}
	}
	body := map[string]any{
		"type":       req.Type,
		"member_ids": memberIDs,
	}
	if req.Name != nil {
		body["name"] = *req.Name
	}
	if req.Username != nil {
		body["username"] = *req.Username
	}
	var resp struct {
		Chat domain.WireChat `json:"chat"`
	}
	if err := a.dataCall(ctx, "create_chat", http.MethodPost, url.Values{"path": {"create-chat"}}, body, &resp, MsgCreateChatFailed); err != nil {
		return domain.WireChat{}, err
	}
	return resp.Chat, nil
}

func (a *TelegramAPI) SearchUsers(ctx context.Context, query string) ([]domain.WireUser, error) {
	var resp struct {
		Users []domain.WireUser `json:"users"`
	}
	values := url.Values{"path": {"search-users"}, "q": {query}}
	if err := a.dataCall(ctx, "search_users", http.MethodGet, values, nil, &resp, MsgSearchUsersFailed); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (a *TelegramAPI) dataCall(ctx context.Context, op, method string, query url.Values, body any, out any, fallback string) error {
	token, _ := a.session.Token()
	started := time.Now()
	err := a.data.Do(ctx, httpjson.Request{
		Method:      method,
		Query:       query,
		Body:        body,
		BearerToken: token,
	}, out)
	metrics.ObserveAPI(op, started, err)
	if err != nil {
		commonlog.Debugf("%s failed: %v", op, err)
		return newFetchError(op, err, fallback)
	}
	return nil
}

func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

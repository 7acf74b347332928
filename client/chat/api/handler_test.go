package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"msg_client/client/chat/domain"
	"msg_client/client/chat/service"
)

type stubController struct {
	loginErr  error
	sendErr   error
	selectErr error
	selected  int64
	sentText  string
	created   service.CreateChatRequest
	snapshot  service.Snapshot
}

func (s *stubController) Login(_ context.Context, username, _ string) (domain.User, error) {
	if s.loginErr != nil {
		return domain.User{}, s.loginErr
	}
	return domain.User{ID: 1, Username: username}, nil
}

func (s *stubController) Register(_ context.Context, req service.RegisterRequest) (domain.User, error) {
	return domain.User{ID: 2, Username: req.Username}, nil
}

func (s *stubController) Logout(context.Context) error { return nil }

func (s *stubController) SelectChat(_ context.Context, chatID int64) error {
	if s.selectErr != nil {
		return s.selectErr
	}
	s.selected = chatID
	s.snapshot.SelectedChatID = chatID
	return nil
}

func (s *stubController) ClearSelection() error {
	s.selected = 0
	return nil
}

func (s *stubController) SendMessage(_ context.Context, text, _ string) (domain.Message, error) {
	if s.sendErr != nil {
		return domain.Message{}, s.sendErr
	}
	s.sentText = text
	return domain.Message{ID: 100, Text: text}, nil
}

func (s *stubController) CreateChat(_ context.Context, req service.CreateChatRequest) (domain.Chat, error) {
	s.created = req
	return domain.Chat{ID: 9, Kind: domain.GroupChat{}, Name: "Team"}, nil
}

func (s *stubController) SearchUsers(_ context.Context, query string) ([]domain.User, error) {
	return []domain.User{{ID: 3, Username: query}}, nil
}

func (s *stubController) Snapshot() service.Snapshot { return s.snapshot }

func (s *stubController) Timers() service.TimerStatus { return service.TimerStatus{ChatRefresh: true} }

func newTestRouter(ctrl Controller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(ctrl).RegisterRoutes(r)
	return r
}

func doJSON(r *gin.Engine, method, target string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestLogin_SurfacesServerMessage(t *testing.T) {
	ctrl := &stubController{loginErr: &service.AuthError{Op: "login", Status: 401, Message: "Invalid username or password"}}
	code, body := doJSON(newTestRouter(ctrl), http.MethodPost, "/api/v1/auth/login", map[string]any{"username": "alice", "password": "x"})
	if code != http.StatusUnauthorized || body["error"] != "Invalid username or password" {
		t.Errorf("login = %d %v", code, body)
	}
}

func TestLogin_TransportFailureUsesFallback(t *testing.T) {
	ctrl := &stubController{loginErr: &service.AuthError{Op: "login", Message: service.MsgLoginFailed, Err: context.DeadlineExceeded}}
	code, body := doJSON(newTestRouter(ctrl), http.MethodPost, "/api/v1/auth/login", map[string]any{"username": "alice", "password": "x"})
	if code != http.StatusBadGateway || body["error"] != service.MsgLoginFailed {
		t.Errorf("login = %d %v", code, body)
	}
}

func TestSendMessage_GenericFailureText(t *testing.T) {
	ctrl := &stubController{sendErr: &service.FetchError{Op: "send", Status: 403, Message: "Access denied"}}
	code, body := doJSON(newTestRouter(ctrl), http.MethodPost, "/api/v1/messages", map[string]any{"text": "hi"})
	if code != http.StatusBadGateway || body["error"] != service.MsgSendFailed {
		t.Errorf("send = %d %v", code, body)
	}
}

func TestSendMessage_LocalRejections(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNoChatSelected, http.StatusConflict},
		{service.ErrEmptyMessage, http.StatusBadRequest},
		{service.ErrNotAuthenticated, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		code, _ := doJSON(newTestRouter(&stubController{sendErr: tt.err}), http.MethodPost, "/api/v1/messages", map[string]any{"text": "hi"})
		if code != tt.want {
			t.Errorf("send with %v = %d, want %d", tt.err, code, tt.want)
		}
	}
}

func TestSelectChat(t *testing.T) {
	ctrl := &stubController{}
	r := newTestRouter(ctrl)
	code, body := doJSON(r, http.MethodPost, "/api/v1/chats/42/select", nil)
	if code != http.StatusOK || ctrl.selected != 42 || body["selectedChatId"] != float64(42) {
		t.Errorf("select = %d %v selected=%d", code, body, ctrl.selected)
	}
	if code, _ := doJSON(r, http.MethodPost, "/api/v1/chats/abc/select", nil); code != http.StatusBadRequest {
		t.Errorf("select abc = %d, want 400", code)
	}
	if code, _ := doJSON(r, http.MethodDelete, "/api/v1/chats/selection", nil); code != http.StatusOK || ctrl.selected != 0 {
		t.Errorf("clear = %d selected=%d", code, ctrl.selected)
	}
}

func TestCreateChat_ParsesType(t *testing.T) {
	ctrl := &stubController{}
	r := newTestRouter(ctrl)
	code, body := doJSON(r, http.MethodPost, "/api/v1/chats", map[string]any{"type": "group", "name": "Team", "member_ids": []int64{2}})
	if code != http.StatusOK {
		t.Fatalf("create = %d %v", code, body)
	}
	if ctrl.created.Type != domain.ChatTypeGroup || len(ctrl.created.MemberIDs) != 1 {
		t.Errorf("created = %+v", ctrl.created)
	}
	chat := body["chat"].(map[string]any)
	if chat["type"] != "group" {
		t.Errorf("chat json = %v", chat)
	}
	if code, _ := doJSON(r, http.MethodPost, "/api/v1/chats", map[string]any{"type": "supergroup"}); code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", code)
	}
}

func TestStateAndHealth(t *testing.T) {
	ctrl := &stubController{snapshot: service.Snapshot{Version: 3, State: service.StateIdle}}
	r := newTestRouter(ctrl)
	code, body := doJSON(r, http.MethodGet, "/api/v1/state", nil)
	if code != http.StatusOK || body["state"] != "authenticated" || body["version"] != float64(3) {
		t.Errorf("state = %d %v", code, body)
	}
	if code, body := doJSON(r, http.MethodGet, "/health", nil); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"msg_client/client/devserver/store"
)

type harness struct {
	t *testing.T
	r *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(store.NewMemoryStore(), "test-secret", 60).RegisterRoutes(r)
	return &harness{t: t, r: r}
}

func (h *harness) do(method, target, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.r.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func (h *harness) register(username string) (string, int64) {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/auth", "", map[string]any{
		"action": "register", "username": username, "password": "pw", "first_name": "Name",
	})
	if code != http.StatusOK {
		h.t.Fatalf("register %s: %d %v", username, code, body)
	}
	user := body["user"].(map[string]any)
	return body["token"].(string), int64(user["id"].(float64))
}

func TestAuth_RegisterLoginVerify(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(http.MethodPost, "/auth", "", map[string]any{
		"action": "register", "username": "  Alice ", "password": "pw", "first_name": "Alice",
	})
	if code != http.StatusOK {
		t.Fatalf("register = %d %v", code, body)
	}
	if body["user"].(map[string]any)["username"] != "alice" {
		t.Errorf("username not normalized: %v", body["user"])
	}

	code, body = h.do(http.MethodPost, "/auth", "", map[string]any{"action": "login", "username": "ALICE", "password": "pw"})
	if code != http.StatusOK || body["token"] == "" {
		t.Fatalf("login = %d %v", code, body)
	}
	token := body["token"].(string)

	code, body = h.do(http.MethodPost, "/auth", token, map[string]any{"action": "verify"})
	if code != http.StatusOK || body["user"].(map[string]any)["username"] != "alice" {
		t.Errorf("verify = %d %v", code, body)
	}
}

func TestAuth_Errors(t *testing.T) {
	h := newHarness(t)
	h.register("alice")

	tests := []struct {
		name     string
		token    string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{"register missing fields", "", map[string]any{"action": "register", "username": "bob"}, 400, "Username, password and first_name are required"},
		{"register short username", "", map[string]any{"action": "register", "username": "ab", "password": "pw", "first_name": "A"}, 400, "Username must be 3-32 characters"},
		{"register duplicate", "", map[string]any{"action": "register", "username": "alice", "password": "pw", "first_name": "A"}, 400, "Username already exists"},
		{"login missing", "", map[string]any{"action": "login", "username": "alice"}, 400, "Username and password are required"},
		{"login wrong password", "", map[string]any{"action": "login", "username": "alice", "password": "nope"}, 401, "Invalid username or password"},
		{"login unknown user", "", map[string]any{"action": "login", "username": "zed", "password": "pw"}, 401, "Invalid username or password"},
		{"verify without token", "", map[string]any{"action": "verify"}, 401, "No token provided"},
		{"verify bad token", "garbage", map[string]any{"action": "verify"}, 401, "Invalid token"},
		{"unknown action", "", map[string]any{"action": "dance"}, 400, "Invalid action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := h.do(http.MethodPost, "/auth", tt.token, tt.body)
			if code != tt.wantCode || body["error"] != tt.wantErr {
				t.Errorf("got %d %v, want %d %q", code, body, tt.wantCode, tt.wantErr)
			}
		})
	}

	if code, body := h.do(http.MethodGet, "/auth", "", nil); code != http.StatusMethodNotAllowed || body["error"] != "Method not allowed" {
		t.Errorf("GET /auth = %d %v", code, body)
	}
}

func TestData_RequiresToken(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(http.MethodGet, "/api?path=chats", "", nil)
	if code != http.StatusUnauthorized || body["error"] != "Unauthorized" {
		t.Errorf("no token = %d %v", code, body)
	}
	code, _ = h.do(http.MethodOptions, "/api", "", nil)
	if code != http.StatusOK {
		t.Errorf("preflight = %d, want 200", code)
	}
}

func TestData_ChatFlow(t *testing.T) {
	h := newHarness(t)
	aliceToken, _ := h.register("alice")
	bobToken, bobID := h.register("bob")
	carolToken, _ := h.register("carol")

	code, body := h.do(http.MethodPost, "/api?path=create-chat", aliceToken, map[string]any{"type": "private", "member_ids": []int64{bobID}})
	if code != http.StatusOK {
		t.Fatalf("create-chat = %d %v", code, body)
	}
	chatID := int64(body["chat"].(map[string]any)["id"].(float64))

	code, body = h.do(http.MethodGet, "/api?path=chats", bobToken, nil)
	chats := body["chats"].([]any)
	if code != http.StatusOK || len(chats) != 1 {
		t.Fatalf("bob chats = %d %v", code, body)
	}
	if chats[0].(map[string]any)["last_message"] != nil {
		t.Errorf("last_message = %v, want null", chats[0].(map[string]any)["last_message"])
	}

	code, body = h.do(http.MethodPost, "/api?path=send", aliceToken, map[string]any{"chat_id": chatID, "text": "  hi  "})
	if code != http.StatusOK || body["message"].(map[string]any)["text"] != "hi" {
		t.Fatalf("send = %d %v", code, body)
	}

	code, body = h.do(http.MethodGet, "/api?path=messages/"+itoa(chatID), bobToken, nil)
	msgs := body["messages"].([]any)
	if code != http.StatusOK || len(msgs) != 1 || msgs[0].(map[string]any)["text"] != "hi" {
		t.Errorf("messages = %d %v", code, body)
	}

	if code, body := h.do(http.MethodGet, "/api?path=messages/"+itoa(chatID), carolToken, nil); code != http.StatusForbidden || body["error"] != "Access denied" {
		t.Errorf("non-member messages = %d %v", code, body)
	}
	if code, body := h.do(http.MethodPost, "/api?path=send", carolToken, map[string]any{"chat_id": chatID, "text": "x"}); code != http.StatusForbidden {
		t.Errorf("non-member send = %d %v", code, body)
	}
}

func TestData_Validation(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("alice")

	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		wantCode int
		wantErr  string
	}{
		{"send blank", http.MethodPost, "/api?path=send", map[string]any{"chat_id": 1, "text": "   "}, 400, "chat_id and text are required"},
		{"send no chat", http.MethodPost, "/api?path=send", map[string]any{"text": "hi"}, 400, "chat_id and text are required"},
		{"group without name", http.MethodPost, "/api?path=create-chat", map[string]any{"type": "group"}, 400, "Name is required for groups and channels"},
		{"unknown chat type", http.MethodPost, "/api?path=create-chat", map[string]any{"type": "supergroup", "name": "x"}, 400, "Invalid chat type"},
		{"short search", http.MethodGet, "/api?path=search-users&q=a", nil, 400, "Query must be at least 2 characters"},
		{"unknown path", http.MethodGet, "/api?path=nope", nil, 404, "Not found"},
		{"bad chat id", http.MethodGet, "/api?path=messages/abc", nil, 400, "Invalid chat id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := h.do(tt.method, tt.target, token, tt.body)
			if code != tt.wantCode || body["error"] != tt.wantErr {
				t.Errorf("got %d %v, want %d %q", code, body, tt.wantCode, tt.wantErr)
			}
		})
	}
}

func TestData_SearchUsers(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("alice")
	h.register("alicia")
	h.register("bob")

	code, body := h.do(http.MethodGet, "/api?path=search-users&q=ALI", token, nil)
	if code != http.StatusOK || len(body["users"].([]any)) != 2 {
		t.Errorf("search = %d %v", code, body)
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"msg_client/client/chat/domain"
	commonauth "msg_client/client/common/auth"
	commonlog "msg_client/client/common/log"
	"msg_client/client/common/middleware"
	"msg_client/client/common/transport/httpresp"
	"msg_client/client/devserver/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves the two endpoints the client talks to: /auth with an
// action field, and /api with a path query parameter.
type Handler struct {
	store store.Store
	auth  *commonauth.Service
}

func NewHandler(st store.Store, jwtSecret string, jwtTTLMinutes int) *Handler {
	return &Handler{store: st, auth: commonauth.NewService(jwtSecret, jwtTTLMinutes)}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, httpresp.NewHealthResponse("ok")) })

	r.Use(allowAnyOrigin)
	r.OPTIONS("/auth", preflight("POST, OPTIONS"))
	r.POST("/auth", h.handleAuth)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		r.Handle(method, "/auth", func(c *gin.Context) {
			c.JSON(http.StatusMethodNotAllowed, httpresp.NewErrorResponse("Method not allowed"))
		})
	}

	r.OPTIONS("/api", preflight("GET, POST, OPTIONS"))
	data := r.Group("/api")
	data.Use(middleware.AuthRequired(h.auth))
	{
		data.GET("", h.handleDataGet)
		data.POST("", h.handleDataPost)
	}
}

func allowAnyOrigin(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Next()
}

func preflight(methods string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Status(http.StatusOK)
	}
}

type authRequest struct {
	Action    string `json:"action"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type authResponse struct {
	Token string          `json:"token"`
	User  domain.WireUser `json:"user"`
}

func (h *Handler) handleAuth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	switch req.Action {
	case "register":
		h.register(c, req)
	case "login":
		h.login(c, req)
	case "verify":
		h.verify(c)
	default:
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Invalid action"))
	}
}

func (h *Handler) register(c *gin.Context, req authRequest) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	firstName := strings.TrimSpace(req.FirstName)
	if username == "" || req.Password == "" || firstName == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Username, password and first_name are required"))
		return
	}
	if n := utf8.RuneCountInString(username); n < 3 || n > 32 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Username must be 3-32 characters"))
		return
	}
	hash, err := commonauth.HashPassword(req.Password)
	if err != nil {
		h.internalError(c, "hash password", err)
		return
	}
	user, err := h.store.CreateUser(c.Request.Context(), store.NewUser{
		Username:     username,
		FirstName:    firstName,
		LastName:     optional(req.LastName),
		Phone:        optional(req.Phone),
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Username already exists"))
		return
	}
	if err != nil {
		h.internalError(c, "create user", err)
		return
	}
	h.issueToken(c, user)
}

func (h *Handler) login(c *gin.Context, req authRequest) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Username and password are required"))
		return
	}
	rec, err := h.store.UserByUsername(c.Request.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.internalError(c, "load user", err)
		return
	}
	if err != nil || !commonauth.CheckPassword(rec.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse("Invalid username or password"))
		return
	}
	if err := h.store.SetOnline(c.Request.Context(), rec.ID); err != nil {
		commonlog.Warnf("mark user %d online: %v", rec.ID, err)
	}
	h.issueToken(c, rec.WireUser)
}

func (h *Handler) issueToken(c *gin.Context, user domain.WireUser) {
	token, err := h.auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.internalError(c, "sign token", err)
		return
	}
	commonlog.Infof("issued token user_id=%d", user.ID)
	c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) verify(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
		return
	}
	userID, _, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
		return
	}
	user, err := h.store.UserByID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse("User not found"))
		return
	}
	if err != nil {
		h.internalError(c, "load user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) handleDataGet(c *gin.Context) {
	path := c.Query("path")
	switch {
	case path == "chats":
		h.listChats(c)
	case strings.HasPrefix(path, "messages/"):
		h.listMessages(c, strings.TrimPrefix(path, "messages/"))
	case path == "search-users":
		h.searchUsers(c)
	default:
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
	}
}

func (h *Handler) handleDataPost(c *gin.Context) {
	switch c.Query("path") {
	case "send":
		h.sendMessage(c)
	case "create-chat":
		h.createChat(c)
	default:
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
	}
}

func (h *Handler) listChats(c *gin.Context) {
	chats, err := h.store.ListChats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.internalError(c, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) listMessages(c *gin.Context, rawChatID string) {
	chatID, err := strconv.ParseInt(rawChatID, 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Invalid chat id"))
		return
	}
	userID := middleware.UserID(c)
	if !h.requireMember(c, chatID, userID) {
		return
	}
	limit := parsePositive(c.Query("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	messages, err := h.store.ListMessages(c.Request.Context(), chatID, userID, limit, offset)
	if err != nil {
		h.internalError(c, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		ChatID      int64  `json:"chat_id"`
		Text        string `json:"text"`
		MessageType string `json:"message_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	text := strings.TrimSpace(req.Text)
	if req.ChatID <= 0 || text == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("chat_id and text are required"))
		return
	}
	if req.MessageType == "" {
		req.MessageType = "text"
	}
	userID := middleware.UserID(c)
	if !h.requireMember(c, req.ChatID, userID) {
		return
	}
	msg, err := h.store.CreateMessage(c.Request.Context(), req.ChatID, userID, text, req.MessageType)
	if err != nil {
		h.internalError(c, "create message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) createChat(c *gin.Context) {
	var req struct {
		Type      string  `json:"type"`
		Name      string  `json:"name"`
		Username  string  `json:"username"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	if req.Type == "" {
		req.Type = string(domain.ChatTypePrivate)
	}
	chatType, err := domain.ParseChatType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Invalid chat type"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if (chatType == domain.ChatTypeGroup || chatType == domain.ChatTypeChannel) && name == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Name is required for groups and channels"))
		return
	}
	chat, err := h.store.CreateChat(c.Request.Context(), store.NewChat{
		Type:      chatType,
		Name:      optional(name),
		Username:  optional(strings.ToLower(strings.TrimSpace(req.Username))),
		CreatedBy: middleware.UserID(c),
		MemberIDs: req.MemberIDs,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Username already exists"))
		return
	}
	if err != nil {
		h.internalError(c, "create chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (h *Handler) searchUsers(c *gin.Context) {
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	if utf8.RuneCountInString(query) < 2 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("Query must be at least 2 characters"))
		return
	}
	users, err := h.store.SearchUsers(c.Request.Context(), query, store.SearchLimit)
	if err != nil {
		h.internalError(c, "search users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) requireMember(c *gin.Context, chatID, userID int64) bool {
	ok, err := h.store.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		h.internalError(c, "check membership", err)
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrAccessDenied))
		return false
	}
	return true
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	commonlog.Errorf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(httpresp.ErrInternalServerError))
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func parsePositive(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

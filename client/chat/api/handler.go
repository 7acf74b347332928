package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"msg_client/client/chat/domain"
	"msg_client/client/chat/service"
	"msg_client/client/common/transport/httpresp"
)

// Controller is what the bridge needs from the synchronizer.
type Controller interface {
	Login(ctx context.Context, username, password string) (domain.User, error)
	Register(ctx context.Context, req service.RegisterRequest) (domain.User, error)
	Logout(ctx context.Context) error
	SelectChat(ctx context.Context, chatID int64) error
	ClearSelection() error
	SendMessage(ctx context.Context, text, messageType string) (domain.Message, error)
	CreateChat(ctx context.Context, req service.CreateChatRequest) (domain.Chat, error)
	SearchUsers(ctx context.Context, query string) ([]domain.User, error)
	Snapshot() service.Snapshot
	Timers() service.TimerStatus
}

// Handler is the boundary a view talks to: snapshots go out, intents come in.
type Handler struct {
	sync Controller
}

func NewHandler(sync Controller) *Handler {
	return &Handler{sync: sync}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, httpresp.NewHealthResponse("ok")) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/state", h.getState)
		v1.GET("/timers", h.getTimers)
		v1.POST("/auth/login", h.login)
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/logout", h.logout)
		v1.POST("/chats", h.createChat)
		v1.POST("/chats/:id/select", h.selectChat)
		v1.DELETE("/chats/selection", h.clearSelection)
		v1.POST("/messages", h.sendMessage)
		v1.GET("/users/search", h.searchUsers)
	}
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

func (h *Handler) getTimers(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Timers())
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	user, err := h.sync.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err, service.MsgLoginFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Username  string  `json:"username"`
		Password  string  `json:"password"`
		FirstName string  `json:"first_name"`
		LastName  *string `json:"last_name"`
		Phone     *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	user, err := h.sync.Register(c.Request.Context(), service.RegisterRequest{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(c, err, service.MsgRegistrationFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sync.Logout(c.Request.Context()); err != nil {
		writeError(c, err, "Logout failed")
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) selectChat(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid chat id"))
		return
	}
	if err := h.sync.SelectChat(c.Request.Context(), chatID); err != nil {
		writeError(c, err, service.MsgFetchMsgsFailed)
		return
	}
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

func (h *Handler) clearSelection(c *gin.Context) {
	if err := h.sync.ClearSelection(); err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Text        string `json:"text"`
		MessageType string `json:"message_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	msg, err := h.sync.SendMessage(c.Request.Context(), req.Text, req.MessageType)
	if err != nil {
		var fetchErr *service.FetchError
		if errors.As(err, &fetchErr) {
			// send failures always surface the generic text
			c.JSON(http.StatusBadGateway, httpresp.NewErrorResponse(service.MsgSendFailed))
			return
		}
		writeError(c, err, service.MsgSendFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) createChat(c *gin.Context) {
	var req struct {
		Type      string  `json:"type"`
		Name      *string `json:"name"`
		Username  *string `json:"username"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidRequestBody))
		return
	}
	chatType := domain.ChatTypePrivate
	if strings.TrimSpace(req.Type) != "" {
		parsed, err := domain.ParseChatType(req.Type)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		chatType = parsed
	}
	chat, err := h.sync.CreateChat(c.Request.Context(), service.CreateChatRequest{
		Type:      chatType,
		Name:      req.Name,
		Username:  req.Username,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		writeError(c, err, service.MsgCreateChatFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (h *Handler) searchUsers(c *gin.Context) {
	users, err := h.sync.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err, service.MsgSearchUsersFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrNoChatSelected):
		c.JSON(http.StatusConflict, httpresp.NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
	default:
		c.JSON(statusFor(err), httpresp.NewErrorResponse(service.UserMessage(err, fallback)))
	}
}

// statusFor passes 4xx from the remote through and reports everything else
// as a bad gateway.
func statusFor(err error) int {
	var authErr *service.AuthError
	if errors.As(err, &authErr) && authErr.Status >= 400 && authErr.Status < 500 {
		return authErr.Status
	}
	var fetchErr *service.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Status >= 400 && fetchErr.Status < 500 {
		return fetchErr.Status
	}
	if authErr != nil && authErr.Status == 0 && authErr.Err == nil {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"msg_client/client/common/transport/httpresp"
)

const (
	CtxAccessToken = "auth_access_token"
	CtxUserID      = "auth_user_id"
	CtxUsername    = "auth_username"
)

type tokenAuth interface {
	ParseAuthContext(token string) (userID int64, username string, err error)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// AuthRequired rejects every failure with the same "Unauthorized" body.
func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
			return
		}
		userID, username, err := auth.ParseAuthContext(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
			return
		}
		c.Set(CtxAccessToken, token)
		c.Set(CtxUserID, userID)
		c.Set(CtxUsername, username)
		c.Next()
	}
}

func UserID(c *gin.Context) int64 {
	raw, ok := c.Get(CtxUserID)
	if !ok {
		return 0
	}
	id, _ := raw.(int64)
	return id
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pomelo/internal/pkg/ctxutil"
	"pomelo/internal/pkg/jwt"
)

const (
	sessionCookie = "session_id"
	// 匿名会话 cookie 有效期（秒）
	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

// Session 会话解析中间件
// 优先取 Authorization Bearer token 里的用户身份，没有或无效时
// 退回匿名会话 cookie，首次访问自动发放
func Session(validator *jwt.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""

		if validator != nil {
			authHeader := c.GetHeader("Authorization")
			if parts := strings.Split(authHeader, " "); len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := validator.Validate(parts[1]); err == nil {
					sessionID = claims.UserID
				}
			}
		}

		if sessionID == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil && cookie != "" {
				sessionID = cookie
			} else {
				sessionID = uuid.NewString()
				c.SetCookie(sessionCookie, sessionID, sessionCookieMaxAge, "/", "", false, true)
			}
		}

		c.Set(sessionCookie, sessionID)
		ctx := ctxutil.WithSessionID(c.Request.Context(), sessionID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

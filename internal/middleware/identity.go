package middleware

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"Matchmaking/internal/auth"
	"Matchmaking/internal/domain"
)

// PlayerIDKey gin context key read by websocket.ServeWS.
const PlayerIDKey = "playerId"

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	// 浏览器 WebSocket 无法自定义 header，允许 query 传 token
	return c.Query("token")
}

// PlayerIdentity 有 secret 时要求 JWT（sub 即 playerId）；
// 未配置 secret 时信任 ?playerId= 或 X-Player-Id，仅用于开发环境。
func PlayerIdentity(secret string, logger *log.Logger) gin.HandlerFunc {
	logger = logger.WithPrefix("auth")
	return func(c *gin.Context) {
		var raw string
		if secret != "" {
			tok := bearerToken(c)
			if tok == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "missing token"})
				return
			}
			sub, err := auth.ParseToken(secret, tok)
			if err != nil {
				logger.Warn("rejected token", "ip", c.ClientIP(), "err", err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "invalid token"})
				return
			}
			raw = sub
		} else {
			raw = c.Query("playerId")
			if raw == "" {
				raw = c.GetHeader("X-Player-Id")
			}
			if raw == "" {
				c.Next()
				return
			}
		}

		playerID, err := domain.NormalizePlayerID(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": domain.KindValidation.String(), "message": err.Error()})
			return
		}
		c.Set(PlayerIDKey, playerID)
		c.Next()
	}
}

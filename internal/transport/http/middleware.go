package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const ownerRefKey = "owner_ref"

// Logger пишет access-лог каждого запроса через logrus.
func Logger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("http request")
	}
}

// RequireAuth проверяет bearer-токен (HS256) и кладёт subject клейма
// в контекст как owner ref. Без валидного токена запрос не проходит.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token subject is empty"})
			return
		}

		c.Set(ownerRefKey, claims.Subject)
		c.Next()
	}
}

// ownerRef достаёт идентификатор владельца, положенный auth-middleware.
func ownerRef(c *gin.Context) (string, bool) {
	value, ok := c.Get(ownerRefKey)
	if !ok {
		return "", false
	}
	owner, ok := value.(string)
	return owner, ok && owner != ""
}

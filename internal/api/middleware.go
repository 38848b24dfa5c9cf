package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/tally-server/internal/auth"
)

const sessionCookie = "session"

// SessionMiddleware resolves the caller's token into a session on the request
// context. A missing or invalid token leaves the request anonymous; the
// procedure pipeline decides whether that is acceptable.
func SessionMiddleware(tokens *auth.Tokens, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.Next()
			return
		}

		session, err := tokens.Verify(tokenString)
		if err != nil {
			logger.Debug("ignoring invalid session token", "path", c.FullPath(), "error", err)
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), session))
		c.Next()
	}
}

// bearerToken reads the token from the Authorization header, falling back to
// the session cookie
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}

	cookie, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return cookie
}

// RequestLogger logs every request once it has been served
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

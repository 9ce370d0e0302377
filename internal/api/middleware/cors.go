package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/armscan/internal/config"
)

const (
	allowHeaders = "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With"
	allowMethods = "POST, OPTIONS, GET"
)

// CORS returns a middleware that handles Cross-Origin Resource Sharing
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed, credentials := allowedOrigin(origin, cfg)
		if allowed == "" {
			// Origin not allowed, don't set CORS headers
			c.Next()
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", credentials)
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		c.Writer.Header().Set("Access-Control-Allow-Methods", allowMethods)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or "" to refuse.
// With no configured origins every origin is echoed back.
func allowedOrigin(origin string, cfg config.CORSConfig) (value, credentials string) {
	if cfg.AllowAllOrigins {
		// When using *, credentials must be false
		return "*", "false"
	}
	if len(cfg.AllowedOrigins) == 0 {
		return origin, "true"
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(origin, o) {
			return origin, "true"
		}
	}
	return "", ""
}

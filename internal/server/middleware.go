package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerKey  = "X-Plandala-Key"
	headerUser = "X-Plandala-User"
)

type actorKey struct{}

func withActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

func actorFrom(ctx context.Context) string {
	name, _ := ctx.Value(actorKey{}).(string)
	return name
}

// allowedOrigin turns the configured auth domain into a CORS origin.
func allowedOrigin(authDomain string) string {
	if authDomain == "" || strings.Contains(authDomain, "://") {
		return authDomain
	}
	return "https://" + authDomain
}

// cors answers preflight requests and tags responses for the front end's
// origin.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+headerKey+", "+headerUser)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireKey rejects requests whose API key header does not match.
func requireKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(headerKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// requireUser rejects mutations that carry no display name and records the
// name on the request context.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(headerUser))
		if name == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user name required"})
			return
		}
		c.Set("user", name)
		c.Request = c.Request.WithContext(withActor(c.Request.Context(), name))
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OriginPolicy reports whether a browser origin may call the bridge API.
type OriginPolicy struct {
	allowAll bool
	origins  map[string]bool
}

// NewOriginPolicy builds a policy from configured origins; "*" allows any.
func NewOriginPolicy(allowedOrigins []string) OriginPolicy {
	policy := OriginPolicy{origins: make(map[string]bool, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			policy.allowAll = true
			continue
		}
		policy.origins[origin] = true
	}
	return policy
}

// Allowed reports whether origin passes. Requests without an Origin header
// do not come from a browser and always pass.
func (p OriginPolicy) Allowed(origin string) bool {
	return origin == "" || p.allowAll || p.origins[origin]
}

// CORS adds Cross-Origin Resource Sharing headers to responses.
func CORS(policy OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case policy.allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && policy.origins[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin,Content-Type,Accept,X-Request-ID,X-Trace-ID")
			c.Header("Access-Control-Max-Age", "86400")

			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

package middleware

import (
	"net/http"
	"time"

	"multichain-wallet-api/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CSRFCookieName is the double-submit cookie; its value must be echoed in
// the CSRFHeaderName header on mutating requests.
const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// RequestLogger creates a custom request logger middleware
func RequestLogger(logger *logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Logger.WithFields(map[string]interface{}{
			"timestamp":  param.TimeStamp.Format(time.RFC3339),
			"status":     param.StatusCode,
			"latency":    param.Latency,
			"client_ip":  param.ClientIP,
			"method":     param.Method,
			"path":       param.Path,
			"user_agent": param.Request.UserAgent(),
			"error":      param.ErrorMessage,
		}).Info("HTTP Request")
		return ""
	})
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// CSRF enforces the double-submit cookie check on mutating requests. Routes
// in exempt (cron triggers, public read-mostly endpoints) skip the check.
func CSRF(exempt map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		default:
			c.Next()
			return
		}
		if exempt[c.FullPath()] {
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookieName)
		header := c.GetHeader(CSRFHeaderName)
		if err != nil || cookie == "" || header == "" || cookie != header {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF token mismatch"})
			return
		}
		c.Next()
	}
}

// IssueCSRFToken mints a fresh token and sets it as both cookie and body so
// the client can echo it back in the header. The cookie must be readable by
// the client script, so HttpOnly stays off; Secure is driven by configuration
// so the token never travels over plaintext HTTP in production.
func IssueCSRFToken(secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(CSRFCookieName, token, int((12 * time.Hour).Seconds()), "/", "", secureCookie, false)
		c.JSON(http.StatusOK, gin.H{"csrf_token": token})
	}
}

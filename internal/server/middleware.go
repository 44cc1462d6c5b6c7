package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextUserIDKey = "user_id"

// AuthRequired authenticates the request with a bearer token signed with
// the shared HS256 secret. The token subject is the user id.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Without a configured secret every HS256 signature would verify
		// against the empty key, so reject everything instead.
		if strings.TrimSpace(s.cfg.AuthJWTSecret) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.AuthJWTSecret), nil
		})
		if err != nil || !token.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, subject)
		c.Next()
	}
}

func (s *Server) currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

// SubmitRateLimit throttles generation submissions per user. Limiter errors
// fail open: a redis outage must not take submissions down with it.
func (s *Server) SubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), s.currentUserID(c))
		if err != nil {
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds()+1)))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CookieName    = "stacnav_session"
	CtxSessionKey = "stacnav_session"
)

// Require attaches the caller's existing session and answers 401 when there
// is none. It never creates sessions.
func Require(m *Manager, tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := lookup(c, m, tokens)
		if s == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session; start one with GET /nav/"})
			c.Abort()
			return
		}
		c.Set(CtxSessionKey, s)
		c.Next()
	}
}

// Middleware attaches a session to the request. The session is named by
// the cookie or a bearer token; requests without a live session get a fresh
// one and a new cookie. Mount it only on the routes that start browsing and
// use Require elsewhere.
func Middleware(m *Manager, tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := lookup(c, m, tokens); s != nil {
			c.Set(CtxSessionKey, s)
			c.Next()
			return
		}

		s, err := m.Create(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
			c.Abort()
			return
		}
		token, exp, err := tokens.Sign(s.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign session"})
			c.Abort()
			return
		}

		maxAge := int(tokens.Duration.Seconds())
		if maxAge <= 0 {
			maxAge = int(exp.Sub(s.CreatedAt).Seconds())
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, token, maxAge, "/", "", false, true)
		c.Header("X-Session-Token", token)

		c.Set(CtxSessionKey, s)
		c.Next()
	}
}

func lookup(c *gin.Context, m *Manager, tokens TokenService) *Session {
	raw := ""
	if h := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		raw = strings.TrimSpace(h[len("Bearer "):])
	} else if v, err := c.Cookie(CookieName); err == nil {
		raw = v
	}
	if raw == "" {
		return nil
	}

	claims, err := tokens.Parse(raw)
	if err != nil {
		return nil
	}
	s, ok := m.Get(claims.SessionID)
	if !ok {
		return nil
	}
	return s
}

func MustGet(c *gin.Context) *Session {
	v, ok := c.Get(CtxSessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Session)
	return s
}

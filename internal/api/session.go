package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookie = "redeem_sid"
	sessionKey    = "session_id"
)

// SessionMiddleware gives every browser a session id cookie so its modal
// state survives between requests. Unknown or malformed ids are replaced.
func SessionMiddleware(maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(sessionCookie)
		if err != nil || !validSessionID(sid) {
			sid = uuid.NewString()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, sid, maxAge, "/", "", false, true)
		c.Set(sessionKey, sid)
		c.Next()
	}
}

func validSessionID(sid string) bool {
	_, err := uuid.Parse(sid)
	return err == nil
}

package middleware

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sirupsen/logrus"
)

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

const flashKey = "flash"

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Sessions holds flash messages between a redirect and the page it lands on.
var Sessions = session.New(session.Config{
	KeyLookup:      "cookie:jpj_session",
	CookieHTTPOnly: true,
	CookieSameSite: "Lax",
})

// SetFlash queues a message for the next page the user sees.
func SetFlash(c *fiber.Ctx, kind, message string) {
	sess, err := Sessions.Get(c)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load session for flash")
		return
	}
	var flashes []Flash
	if raw, ok := sess.Get(flashKey).(string); ok {
		_ = json.Unmarshal([]byte(raw), &flashes)
	}
	flashes = append(flashes, Flash{Kind: kind, Message: message})
	b, _ := json.Marshal(flashes)
	sess.Set(flashKey, string(b))
	if err := sess.Save(); err != nil {
		logrus.WithError(err).Warn("Failed to save flash")
	}
}

// TakeFlashes returns and clears the queued messages.
func TakeFlashes(c *fiber.Ctx) []Flash {
	sess, err := Sessions.Get(c)
	if err != nil {
		return nil
	}
	raw, ok := sess.Get(flashKey).(string)
	if !ok {
		return nil
	}
	var flashes []Flash
	_ = json.Unmarshal([]byte(raw), &flashes)
	sess.Delete(flashKey)
	if err := sess.Save(); err != nil {
		logrus.WithError(err).Warn("Failed to clear flash")
	}
	return flashes
}

package controllers

import (
	"jpjportal_go/middleware"
	"jpjportal_go/models"
	"jpjportal_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WebSocketController struct {
	hub *websocket.Hub
	db  *gorm.DB
}

func NewWebSocketController(hub *websocket.Hub, db *gorm.DB) *WebSocketController {
	return &WebSocketController{hub: hub, db: db}
}

// Upgrade authenticates the request before the protocol switch. Browsers send
// the session cookie; other clients pass ?token=.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	token := c.Query("token")
	if token == "" {
		token = c.Cookies(middleware.TokenCookie)
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
	}
	claims, err := middleware.ParseToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	// Verify user still exists and is active
	var user models.User
	if err := wsc.db.Where("id = ? AND status = ?", claims.UserID, "active").First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
	}
	c.Locals("ws_user_id", user.ID)
	return c.Next()
}

// WebSocketHandler connects an authenticated socket to the hub
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		userID, ok := c.Locals("ws_user_id").(uint)
		if !ok {
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Unauthorized"))
			_ = c.Close()
			return
		}
		logrus.WithField("user_id", userID).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, userID)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}

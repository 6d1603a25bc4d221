package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/helper"
	"github.com/cedar-wallet/cedar_wallet/internal/notification"
)

// RegisterWebsocketRoute streams the caller's transaction and balance events.
// r must already authenticate the request.
func RegisterWebsocketRoute(r fiber.Router, hub *notification.Hub) {
	r.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(helper.UserIDKey).(string)
		hub.Serve(conn, userID)
	}))
}

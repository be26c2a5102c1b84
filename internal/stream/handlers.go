package stream

import (
	"context"

	"github.com/AyushMusale/TripSense/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TripAccess decides who may follow a trip live.
type TripAccess interface {
	CanWatch(ctx context.Context, userID, tripID string) (bool, error)
}

// RegisterRoutes exposes /ws/:tripID. The token may come from the
// Authorization header or ?token=; only the trip owner gets upgraded.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, access TripAccess) {
	r.Get("/ws/:tripID", auth.QueryToken("token"), authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		ok, err := access.CanWatch(c.UserContext(), userID, c.Params("tripID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "trip not found")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		tripID := c.Params("tripID")
		client := hub.Register(tripID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
}

package stream

import (
	"context"
	"errors"
	"sync"

	"backend-stoperica/internal/live"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes exposes /ws/:sessionID. Each message is a whole session
// record; the socket is closed once the session ends.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)
		var once sync.Once
		leave := func() { once.Do(func() { hub.Unregister(client) }) }
		defer leave()

		initial, ok, err := hub.Initial(context.Background(), sessionID)
		switch {
		case errors.Is(err, live.ErrSessionNotFound):
			closeWith(c, "session not found")
			return
		case err != nil:
			log.Warn().Err(err).Str("live_session_id", sessionID).Msg("initial snapshot failed")
		case ok:
			if err := c.WriteMessage(websocket.TextMessage, initial); err != nil {
				return
			}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if len(msg) == 0 {
					closeWith(c, "session ended")
					_ = c.Close()
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		leave()
		<-done
	}))
}

func closeWith(c *websocket.Conn, reason string) {
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

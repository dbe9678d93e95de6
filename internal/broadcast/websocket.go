package broadcast

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
)

const (
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4 * 1024
)

// Upgrade validates the ticket query parameter before the websocket handshake.
func Upgrade(tickets *auth.Tickets) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		claims, err := tickets.Validate(c.Query("ticket"))
		if err != nil {
			return router.ResponseUnauthorized(c, err.Error())
		}
		c.Locals("session_id", claims.SessionID)
		return c.Next()
	}
}

// Stream pushes qr, status, code and export frames of one session. The stream
// ends after the session terminates.
func Stream(hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sessionID, _ := conn.Locals("session_id").(string)
		entry := log.Session(sessionID).WithField("remote_ip", conn.IP())

		sub, initial, ok := hub.Subscribe(sessionID)
		if !ok {
			_ = conn.WriteJSON(Frame{Event: pairing.EventStatus, Data: pairing.StatusTerminated})
			closeNormal(conn)
			_ = conn.Close()
			return
		}
		defer hub.Unsubscribe(sub)
		entry.Debug("status stream opened")

		closed := make(chan struct{})
		go readPump(conn, closed)

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		defer conn.Close()

		write := func(f Frame) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(f); err != nil {
				return false
			}
			return !(f.Event == pairing.EventStatus && f.Data == pairing.StatusTerminated)
		}

		for _, f := range initial {
			if !write(f) {
				closeNormal(conn)
				return
			}
		}
		for {
			select {
			case <-closed:
				return
			case f := <-sub.C:
				if !write(f) {
					closeNormal(conn)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}

// readPump only keeps the read deadline alive; observers never send frames.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sales-dialer/internal/session"
	"sales-dialer/pkg/logger"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamBuffer     = 32
)

// Origin checking stays on the gorilla default (same host).
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Stream pushes session updates to the agent's console over a websocket.
// The first message is always a full snapshot; after that every state
// change and notice is forwarded as it happens. The socket closes when the
// session does.
func (h Handlers) Stream(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request.
		logger.FromGin(c).Warn("stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	log := logger.FromGin(c)
	updates, cancel := ctl.Subscribe(streamBuffer)
	defer cancel()

	done := make(chan struct{})
	go readPump(conn, done, log)

	snap := ctl.Snapshot()
	if err := writeUpdate(conn, session.Update{Snapshot: &snap}); err != nil {
		log.Debug("stream write failed", "err", err)
		return
	}
	writePump(conn, updates, done, log)
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It closes done when the client goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}, log *slog.Logger) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("stream read error", "err", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, updates <-chan session.Update, done <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				// Session closed or we fell behind.
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := writeUpdate(conn, u); err != nil {
				log.Debug("stream write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeUpdate(conn *websocket.Conn, u session.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(u)
}

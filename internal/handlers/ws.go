// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/codebreak/internal/dispatcher"
	"github.com/jason-s-yu/codebreak/internal/middleware"
	"github.com/jason-s-yu/codebreak/internal/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "codebreak"

// Transport timings. Tests shorten them.
var (
	PingInterval = 30 * time.Second
	PingTimeout  = 15 * time.Second
	WriteTimeout = 5 * time.Second
)

// MaxFrameBytes bounds a single inbound frame.
const MaxFrameBytes = 16 << 10

// Inbound frames are paced per connection: a burst of FrameBurst, then one
// frame every FrameInterval.
var (
	FrameInterval = 50 * time.Millisecond
	FrameBurst    = 20
)

// WSHandler upgrades the request and feeds the client's frames to d until the
// socket closes.
func WSHandler(logger *logrus.Logger, d *dispatcher.Dispatcher, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the codebreak subprotocol")
			return
		}
		c.SetReadLimit(MaxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := registry.NewConn(r.RemoteAddr, nil)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		go writePump(ctx, c, conn, logger)
		readErr := readPump(ctx, c, conn, d, logger)

		cancel()
		d.Disconnect(conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readPump hands every text frame to the dispatcher. It returns the error that
// ended the session, or nil for a normal closure.
func readPump(ctx context.Context, c *websocket.Conn, conn *registry.Conn, d *dispatcher.Dispatcher, logger *logrus.Logger) error {
	l := rate.NewLimiter(rate.Every(FrameInterval), FrameBurst)
	for {
		if err := l.Wait(ctx); err != nil {
			return nil
		}
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.WithField("conn", conn.ID).Debug("ignoring non-text frame")
			continue
		}
		d.HandleRaw(conn, data)
	}
}

// writePump drains the connection's queue onto the socket and keeps it alive
// with pings. A connection superseded by a reconnect is closed with
// SessionSupersededError.
func writePump(ctx context.Context, c *websocket.Conn, conn *registry.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			_ = c.Close(SessionSupersededError, "session resumed elsewhere")
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithError(err).WithField("type", msg.Type()).Warn("failed to marshal outgoing message")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", conn.ID).Debug("write failed, dropping connection")
				_ = c.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", conn.ID).Debug("ping failed, dropping connection")
				_ = c.CloseNow()
				return
			}
		}
	}
}

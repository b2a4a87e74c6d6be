package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handlePresentationSocket(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	// The presentation must exist before a client can watch it.
	if _, err := s.presentations.Get(id); err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	if err := s.broadcaster.Register(id, conn); err != nil {
		slog.Warn("Failed to register with broadcaster",
			"presentation_id", id.String(), "error", err)
		return nil
	}

	// Read pump blocks until the connection closes, keeping pong handling
	// alive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.broadcaster.Unregister(id, conn)
	return nil
}

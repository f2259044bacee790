package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/stockdash/internal/dashboard"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts same-host pages, configured CORS origins and clients
// that send no Origin header.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return slices.Contains(s.cfg.API.CORSOrigins, origin) || slices.Contains(s.cfg.API.CORSOrigins, "*")
}

// handleWebSocket upgrades the connection and streams the session's state.
// The current state is sent first, then one message per change.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var id string
	if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
		id = c.Value
	}
	sess, _ := s.sessions.Acquire(id)

	var header http.Header
	if id != sess.ID {
		header = http.Header{}
		header.Add("Set-Cookie", s.sessionCookie(sess.ID).String())
	}

	conn, err := s.upgrader().Upgrade(w, r, header)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(sess.ID)
	if !s.wsHub.Register(client) {
		conn.Close()
		return
	}
	// Registered first, so no change after this state can be missed.
	s.wsHub.SendTo(client, stateMessage(sess))

	go s.wsWritePump(conn, client)
	go s.wsReadPump(conn, client, sess)
}

// wsReadPump reads client messages until the connection drops.
func (s *Server) wsReadPump(conn *websocket.Conn, client *WSClient, sess *Session) {
	defer func() {
		s.wsHub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "session", sess.ID, "error", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		// Replies go through the hub, which owns the send channel.
		switch msg.Type {
		case "ping":
			s.wsHub.SendTo(client, func() WSMessage { return WSMessage{Type: "pong"} })
		case "refresh":
			s.wsHub.SendTo(client, stateMessage(sess))
		}
	}
}

// wsWritePump writes queued messages and keepalive pings.
func (s *Server) wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// stateMessage builds the session's current state message.
func stateMessage(sess *Session) func() WSMessage {
	return func() WSMessage {
		return WSMessage{Type: "state", Data: dashboard.Render(sess.Ctrl.State())}
	}
}

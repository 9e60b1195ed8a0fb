package session

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the C2 HTTP entrypoint: one WS upgrade handler per spec §6
// (`wss://…/ws?token=…&deviceId=…`).
type Server struct {
	registry *Registry
	log      zerolog.Logger
}

// NewServer wraps a Registry for HTTP registration.
func NewServer(registry *Registry, log zerolog.Logger) *Server {
	return &Server{registry: registry, log: log}
}

// ServeWS upgrades the connection, authenticates the token, resolves the
// (user, device) binding, and runs the blocking per-connection read loop.
func (srv *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	deviceID := r.URL.Query().Get("deviceId")
	if token == "" || deviceID == "" {
		http.Error(w, "missing token or deviceId", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	result, err := srv.registry.auth.Validate(ctx, token)
	if err != nil || !result.Valid {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	sess := srv.registry.GetOrCreate(ctx, result.UserID)
	sess.Attach(ctx, deviceID, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			sess.OnDisconnect(ctx)
			return
		}
		sess.HandleMessage(ctx, raw)
	}
}

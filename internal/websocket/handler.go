package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorewheel/internal/auth"
)

// Handle upgrades the request and subscribes the connection to the caller's
// home. It must run behind middleware that resolves the caller's identity.
func Handle(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "member_id", id.MemberID, "error", err)
			return
		}

		logger.Debug("websocket connected", "home_id", id.HomeID, "member_id", id.MemberID)
		NewClient(hub, conn, id.HomeID).Run(r.Context())
	}
}

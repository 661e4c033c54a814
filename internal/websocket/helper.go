package websocket

import (
	"net/http"
	"strings"

	"github.com/xenn00/musori/internal/entity"
)

// extractRoomID reads room_id from the query, then a trailing /rooms/{id} path, and falls back to
// the default room.
func extractRoomID(r *http.Request) string {
	if roomID := strings.TrimSpace(r.URL.Query().Get("room_id")); roomID != "" {
		return roomID
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) >= 2 && pathParts[len(pathParts)-2] == "rooms" {
		return pathParts[len(pathParts)-1]
	}

	return entity.DefaultRoomID
}

func (h *WebSocketHandler) authenticateConnection(r *http.Request) (entity.Identity, error) {
	if h.authenticator == nil {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			return entity.Identity{}, &AuthError{Message: "user_id is required"}
		}
		return entity.Identity{
			UserID:   userID,
			Nickname: r.URL.Query().Get("nickname"),
			Email:    r.URL.Query().Get("email"),
		}, nil
	}

	return h.authenticator(r)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

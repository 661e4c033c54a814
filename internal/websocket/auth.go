package websocket

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/internal/utils"
)

func JWTWebSocketAuth(publicKey *rsa.PublicKey) AuthenticatorFunc {
	return func(r *http.Request) (entity.Identity, error) {
		token := getTokenFromRequest(r)
		if token == "" {
			return entity.Identity{}, &AuthError{Message: "missing token"}
		}

		claims, err := utils.ParseAndVerifySign(token, publicKey)
		if err != nil {
			// cookies can't be set during the handshake, so the client refreshes over HTTP first
			if errors.Is(err, jwt.ErrTokenExpired) {
				return entity.Identity{}, &AuthError{Message: "token expired, please refresh and reconnect"}
			}
			return entity.Identity{}, &AuthError{Message: "invalid token"}
		}

		return claims.Identity(), nil
	}
}

func getTokenFromRequest(r *http.Request) string {
	// Option 1: Authorization header
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// Option 2: Query parameter
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	// Option 3: Cookie
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

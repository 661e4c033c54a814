package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type claimsKey string

// UserClaimsKey holds the caller's user id as a string.
const UserClaimsKey claimsKey = "userClaims"

type UserResolver interface {
	EnsureUser(ctx context.Context, identity entity.Identity) (*entity.User, *app_error.AppError)
}

// JWTAuth verifies the bearer token and makes sure the caller has a user record before the
// request reaches a handler.
func JWTAuth(publicKey *rsa.PublicKey, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAppError(w, r, app_error.NewAppError(http.StatusUnauthorized, "Missing Authorization header", "auth"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeAppError(w, r, app_error.NewAppError(http.StatusUnauthorized, "Invalid Authorization header format", "auth"))
				return
			}

			claims, err := utils.ParseAndVerifySign(parts[1], publicKey)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "Token expired"
				}
				log.Debug().Err(err).Msg("jwt verify failed")
				writeAppError(w, r, app_error.NewAppError(http.StatusUnauthorized, msg, "auth"))
				return
			}

			user, appErr := users.EnsureUser(r.Context(), claims.Identity())
			if appErr != nil {
				writeAppError(w, r, appErr)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated caller, or "" outside JWTAuth.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserClaimsKey).(string)
	return userID
}

func writeAppError(w http.ResponseWriter, r *http.Request, appErr *app_error.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_ = json.NewEncoder(w).Encode(dtos.Response[any]{
		Message:   appErr.Message,
		RequestID: RequestID(r.Context()),
		Errors: &dtos.ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Field:   appErr.Field,
		},
	})
}

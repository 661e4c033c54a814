package token_handler

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/auth_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	"github.com/xenn00/musori/internal/utils"
)

// TokenHandler signs identity tokens for local development, standing in for the identity provider.
type TokenHandler struct {
	Validate *validator.Validate
	Key      *rsa.PrivateKey
	TTL      time.Duration
	now      func() time.Time
}

func NewTokenHandler(key *rsa.PrivateKey, ttl time.Duration) *TokenHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenHandler{Validate: handlers.NewValidator(), Key: key, TTL: ttl, now: time.Now}
}

func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req auth_dto.DevTokenRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	expiresAt := h.now().Add(h.TTL)
	token, err := utils.IssueToken(entity.Identity{UserID: req.UserID, Email: req.Email, Nickname: req.Nickname}, h.TTL, h.Key)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("failed to sign dev token")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to sign token", "token")
	}

	return handlers.Respond(w, r, http.StatusCreated, "token issued", auth_dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC().Truncate(time.Second),
	})
}

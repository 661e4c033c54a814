package routers

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/handlers"
	token_handler "github.com/xenn00/musori/internal/handlers/token-handler"
)

// DevRouter mounts the token endpoint only when dev tokens are enabled and a signing key is loaded.
func DevRouter(r chi.Router, deps Dependencies) {
	if !deps.DevTokens {
		return
	}
	if deps.State.JwtSecret == nil || deps.State.JwtSecret.Private == nil {
		log.Warn().Msg("dev tokens enabled without a private key, token endpoint not mounted")
		return
	}

	tokenHandler := token_handler.NewTokenHandler(deps.State.JwtSecret.Private, deps.DevTokenTTL)
	r.Post("/api/v1/dev/token", handlers.WrapHandler(tokenHandler.Issue))
	log.Warn().Msg("dev token endpoint is enabled, do not use in production")
}

package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/handlers"
	user_handler "github.com/xenn00/musori/internal/handlers/user-handler"
)

func UserRouter(r chi.Router, deps Dependencies, auth func(http.Handler) http.Handler) {
	userHandler := user_handler.NewUserHandler(deps.Users, deps.Avatars, deps.MaxAvatarBytes, deps.Hub)

	r.Get("/avatars/{name}", handlers.WrapHandler(userHandler.ServeAvatar))

	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Get("/api/v1/users/me", handlers.WrapHandler(userHandler.GetMe))
		protected.Patch("/api/v1/users/me", handlers.WrapHandler(userHandler.UpdateMe))
		protected.Delete("/api/v1/users/me", handlers.WrapHandler(userHandler.DeleteMe))
		protected.Post("/api/v1/users/me/avatar", handlers.WrapHandler(userHandler.UploadAvatar))
		protected.Get("/api/v1/users/{userId}", handlers.WrapHandler(userHandler.GetUser))
	})
}

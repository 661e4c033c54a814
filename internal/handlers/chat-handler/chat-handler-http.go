package chat_handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/xenn00/musori/internal/dtos/chat_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	chat_service "github.com/xenn00/musori/internal/use-case/chat-case"
)

type ChatHandler struct {
	Validate *validator.Validate
	Service  chat_service.ChatServiceContract
}

func NewChatHandler(service chat_service.ChatServiceContract) *ChatHandler {
	return &ChatHandler{
		Validate: handlers.NewValidator(),
		Service:  service,
	}
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req chat_dto.SendMessageRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	resp, err := h.Service.SendMessage(r.Context(), chi.URLParam(r, "roomId"), userID, req)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusCreated, "message sent", resp)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req chat_dto.HistoryRequest
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return app_error.NewAppError(http.StatusBadRequest, "limit must be a number", "limit")
		}
		req.Limit = limit
	}
	if err := h.Validate.Struct(req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "limit must be between 1 and 200", "limit")
	}

	resp, err := h.Service.History(r.Context(), chi.URLParam(r, "roomId"), userID, req)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "messages fetched", resp)
}

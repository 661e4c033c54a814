package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

type HandlerFunc func(w http.ResponseWriter, r *http.Request) *app_error.AppError

func WrapHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			reqID := middleware.RequestID(r.Context())
			event := log.Warn()
			if err.Code >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.Err(err).Int("status", err.Code).Str("field", err.Field).Msg(fmt.Sprintf("error occur, request id: %s", reqID))

			writeJSON(w, err.Code, dtos.Response[any]{
				Message: "Error occur",
				Errors: &dtos.ErrorResponse{
					Code:    err.Code,
					Message: err.Message,
					Field:   err.Field,
				},
				RequestID: reqID,
			})
		}
	}
}

func CreateResponse[T any](message string, data T, requestId string) dtos.Response[T] {
	return dtos.Response[T]{
		Message:   message,
		Data:      data,
		RequestID: requestId,
	}
}

// Respond writes data in the standard envelope.
func Respond[T any](w http.ResponseWriter, r *http.Request, status int, message string, data T) *app_error.AppError {
	writeJSON(w, status, CreateResponse(message, data, middleware.RequestID(r.Context())))
	return nil
}

// NewValidator returns a validator with the project's custom tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("nickname", user_dto.NicknameValidator)
	return validate
}

// DecodeAndValidate reads a JSON body into dst and runs struct validation on it.
func DecodeAndValidate(r *http.Request, validate *validator.Validate, dst any) *app_error.AppError {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "Invalid JSON", "body")
	}

	if err := validate.Struct(dst); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, fmt.Sprintf("Invalid fields: %v", err), "validation")
	}
	return nil
}

// CallerID returns the authenticated user id or a 401.
func CallerID(r *http.Request) (string, *app_error.AppError) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		return "", app_error.NewAppError(http.StatusUnauthorized, "user id is not found in context", "context")
	}
	return userID, nil
}

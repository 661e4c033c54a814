package app_error

import "net/http"

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Field:   field,
	}
}

// Status reports the HTTP status carried by err, or 500 for anything that is not an AppError.
func Status(err error) int {
	switch e := err.(type) {
	case *AppError:
		if e != nil {
			return e.Code
		}
	case AppError:
		return e.Code
	}
	return http.StatusInternalServerError
}

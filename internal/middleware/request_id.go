package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type requestIdKey string

const RequestIdKey requestIdKey = "requestId"

// WithRequestId tags the request with an id, reusing a valid incoming X-Request-ID.
func WithRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqId); err != nil {
			reqId = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), RequestIdKey, reqId)
		r = r.WithContext(ctx)
		r.Header.Set("X-Request-ID", reqId)
		w.Header().Set("X-Request-ID", reqId)

		next.ServeHTTP(w, r)
	})
}

func RequestID(ctx context.Context) string {
	reqID, ok := ctx.Value(RequestIdKey).(string)
	if !ok {
		return "unknown"
	}
	return reqID
}

// AccessLog writes one line per request.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", RequestID(r.Context())).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

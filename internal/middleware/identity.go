package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"groupdecide/pkg/errors"
	"groupdecide/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// UserContextKey is the key for the caller's user id in context
	UserContextKey ContextKey = "user_id"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

const (
	// UserIDHeader carries the caller identity asserted by the fronting gateway
	UserIDHeader = "X-User-ID"
	// RequestIDHeader carries the request correlation id
	RequestIDHeader = "X-Request-ID"
)

// Identity copies the caller's user id from the X-User-ID header into the
// request context. Authentication happens upstream; this layer trusts it.
func Identity(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, userID))
				logger.WithField("user_id", userID).Debug("Caller identified")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests that carry no caller identity
func RequireUser(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserID(r.Context()) == "" {
				WriteError(w, r, errors.NewValidationError(UserIDHeader+" header is required",
					map[string]interface{}{"header": UserIDHeader}), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the caller identity stored by Identity
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserContextKey).(string)
	return userID
}

// RequestID creates a middleware that adds a unique request ID to each request.
// An incoming X-Request-ID is kept so traces line up across services.
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFrom returns the request id stored by RequestID
func RequestIDFrom(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDContextKey).(string)
	return requestID
}

// WriteError writes err as the standard JSON error envelope. Errors that are
// not AppErrors become a generic internal error; the cause is only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *logger.Logger) {
	appErr := errors.AsAppError(err)
	requestID := RequestIDFrom(r.Context())

	log := logger.WithFields(map[string]interface{}{
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"error_type": string(appErr.Type),
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithField("message", appErr.Message).Debug("Request rejected")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = requestID
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.WithError(encodeErr).Error("Failed to encode error response")
	}
}

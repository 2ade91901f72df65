package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	AttemptsLeft *int   `json:"attemptsLeft,omitempty"`
	MinutesLeft  *int   `json:"minutesLeft,omitempty"`
}

// statusFor maps the domain error taxonomy to an HTTP status and a client-safe
// message. Unknown errors become an opaque 500.
func statusFor(err error) (int, ErrorResponse) {
	var (
		validation  *domain.ValidationError
		conflict    *domain.ConflictError
		locked      *domain.LockedError
		credentials *domain.CredentialsError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse{Message: validation.Error()}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Message: err.Error()}
	case errors.Is(err, domain.ErrStaleStatus):
		return http.StatusConflict, ErrorResponse{Message: "Record was changed by another request, please reload and retry"}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorResponse{Message: conflict.Error(), Field: conflict.Field}
	case errors.As(err, &locked):
		return http.StatusTooManyRequests, ErrorResponse{Message: locked.Error(), MinutesLeft: &locked.MinutesLeft}
	case errors.As(err, &credentials):
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid email or password", AttemptsLeft: &credentials.AttemptsLeft}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid email or password"}
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, ErrorResponse{Message: "Session expired, please log in again"}
	case errors.Is(err, domain.ErrSessionInvalid):
		return http.StatusUnauthorized, ErrorResponse{Message: "Not authorized"}
	case errors.Is(err, domain.ErrDisabled):
		return http.StatusForbidden, ErrorResponse{Message: "Account is disabled, contact your administrator"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Message: "You do not have permission to perform this action"}
	case errors.Is(err, domain.ErrNoPublicMatch):
		return http.StatusNotFound, ErrorResponse{Message: domain.PublicNotFoundMessage}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Not found"}
	case errors.Is(err, domain.ErrAlreadyDeleted):
		return http.StatusConflict, ErrorResponse{Message: "Record is already deleted"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, ErrorResponse{Message: "Conflict"}
	case errors.Is(err, domain.ErrAllocationExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{Message: "Could not allocate a visa number, please retry"}
	case errors.Is(err, domain.ErrRenderingFailed):
		return http.StatusServiceUnavailable, ErrorResponse{Message: "Document rendering is unavailable, please retry"}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("request_id", audit.RequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: msg})
}

// dataResponse wraps successful payloads.
type dataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

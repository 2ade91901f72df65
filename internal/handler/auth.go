package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security/middleware"
	"github.com/MdWarishh/visa-management-backend/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	guard  *service.AccountGuard
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(guard *service.AccountGuard, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{guard: guard, logger: logger}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest carries the current and new secret.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.guard.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// unknown accounts look like a wrong password
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.ErrInvalidCredentials
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	writeData(w, http.StatusOK, caller.Principal)
}

// Logout handles POST /api/auth/logout. Sessions are stateless; the client
// drops its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	h.guard.EndSession(r.Context(), caller.Principal.ID)
	writeMessage(w, "Logged out")
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	if err := h.guard.ChangeSecret(r.Context(), caller.Principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Password updated")
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security/middleware"
	"github.com/MdWarishh/visa-management-backend/internal/service"
)

// AccountHandler manages admins (for the owner) and sub-users (for admins).
type AccountHandler struct {
	directory *service.PrincipalDirectory
	logger    *slog.Logger
}

func NewAccountHandler(directory *service.PrincipalDirectory, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{directory: directory, logger: logger}
}

// AccountRequest creates an admin or a sub-user.
type AccountRequest struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Password    string              `json:"password"`
	Permissions domain.Capabilities `json:"permissions"`
}

// AccountPatchRequest updates an account. Absent fields are left untouched.
type AccountPatchRequest struct {
	Name        *string              `json:"name"`
	Permissions *domain.Capabilities `json:"permissions"`
	IsActive    *bool                `json:"isActive"`
	Password    *string              `json:"password"`
}

// PasswordRequest carries a replacement secret.
type PasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	accounts, err := h.directory.List(r.Context(), caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, accounts)
}

// CreateAdmin handles POST /api/accounts/admins
func (h *AccountHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.directory.CreateAdmin)
}

// CreateUser handles POST /api/accounts/users
func (h *AccountHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.directory.CreateUser)
}

type createFunc func(ctx context.Context, caller domain.Caller, in service.PrincipalInput) (*domain.PrincipalSummary, error)

func (h *AccountHandler) create(w http.ResponseWriter, r *http.Request, fn createFunc) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var req AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := fn(r.Context(), caller, service.PrincipalInput{
		Name:         req.Name,
		Email:        req.Email,
		Secret:       req.Password,
		Capabilities: req.Permissions,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, account)
}

// Get handles GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	account, err := h.directory.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, account)
}

// Update handles PATCH /api/accounts/{id}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var req AccountPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.directory.Update(r.Context(), caller, r.PathValue("id"), service.PrincipalPatch{
		Name:         req.Name,
		Capabilities: req.Permissions,
		IsActive:     req.IsActive,
		Secret:       req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, account)
}

// Toggle handles POST /api/accounts/{id}/toggle
func (h *AccountHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	current, err := h.directory.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.directory.SetActive(r.Context(), caller, current.ID, !current.IsActive)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, account)
}

// ResetPassword handles POST /api/accounts/{id}/reset-password
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var req PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.directory.ResetSecret(r.Context(), caller, r.PathValue("id"), req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Password reset")
}

// Delete handles DELETE /api/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	if err := h.directory.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Account deleted")
}

package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
	"github.com/MdWarishh/visa-management-backend/internal/service"
)

// PublicHandler serves the unauthenticated tracking endpoints.
type PublicHandler struct {
	ledger *service.CandidateLedger
	logger *slog.Logger
}

func NewPublicHandler(ledger *service.CandidateLedger, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{ledger: ledger, logger: logger}
}

// TrackRequest identifies a record by one identifier plus date of birth.
type TrackRequest struct {
	Identifier        string `json:"identifier"`
	ApplicationNumber string `json:"applicationNumber"`
	PassportNumber    string `json:"passportNumber"`
	ControlNumber     string `json:"controlNumber"`
	DateOfBirth       string `json:"dateOfBirth"`
}

func (req TrackRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.ApplicationNumber, req.PassportNumber, req.ControlNumber} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Track handles POST /api/public/track
func (h *PublicHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	dob, err := publicInput(req.identifier(), req.DateOfBirth)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.ledger.TrackPublic(r.Context(), req.identifier(), dob)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// Download handles GET /api/public/download/{id}?identifier=...&dateOfBirth=...
func (h *PublicHandler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identifier := q.Get("identifier")
	dob, err := publicInput(identifier, q.Get("dateOfBirth"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	handle, err := h.ledger.FetchArtifactPublic(r.Context(), r.PathValue("id"), identifier, dob, ratelimit.ClientIP(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	serveArtifact(w, r, h.logger, handle)
}

func publicInput(identifier, dob string) (time.Time, error) {
	var msgs []string
	if strings.TrimSpace(identifier) == "" {
		msgs = append(msgs, "an application, passport or control number is required")
	}
	if strings.TrimSpace(dob) == "" {
		msgs = append(msgs, "dateOfBirth is required")
	}
	if len(msgs) > 0 {
		return time.Time{}, domain.NewValidationError(msgs...)
	}
	t, err := service.ParseDate(dob)
	if err != nil {
		return time.Time{}, domain.NewValidationError("dateOfBirth must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

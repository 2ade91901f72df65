package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/export"
	"github.com/MdWarishh/visa-management-backend/internal/security/middleware"
	"github.com/MdWarishh/visa-management-backend/internal/service"
)

// UploadStore persists uploaded files.
type UploadStore interface {
	Save(ctx context.Context, kind domain.UploadKind, r io.Reader) (string, error)
	MaxBytes() int64
}

// CandidateHandler serves the authenticated candidate ledger.
type CandidateHandler struct {
	ledger  *service.CandidateLedger
	uploads UploadStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewCandidateHandler creates a new candidate handler
func NewCandidateHandler(ledger *service.CandidateLedger, uploads UploadStore, logger *slog.Logger) *CandidateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateHandler{ledger: ledger, uploads: uploads, logger: logger, now: time.Now}
}

// CandidateRequest is the JSON body for create. Dates are YYYY-MM-DD.
type CandidateRequest struct {
	IdentityType      string `json:"identityType"`
	PassportNumber    string `json:"passportNumber"`
	ControlNumber     string `json:"controlNumber"`
	FullName          string `json:"fullName"`
	DateOfBirth       string `json:"dateOfBirth"`
	Profession        string `json:"profession"`
	CompanyName       string `json:"companyName"`
	ApplicationNumber string `json:"applicationNumber"`
	ApplicationDate   string `json:"applicationDate"`
	Country           string `json:"country"`
	VisaType          string `json:"visaType"`
	VisaIssueDate     string `json:"visaIssueDate"`
	VisaExpiryDate    string `json:"visaExpiryDate"`
	Status            string `json:"status"`
	Remarks           string `json:"remarks"`
}

// CandidatePatchRequest is the JSON body for update. Absent fields are left
// untouched; an empty string clears an optional field.
type CandidatePatchRequest struct {
	IdentityType      *string `json:"identityType"`
	PassportNumber    *string `json:"passportNumber"`
	ControlNumber     *string `json:"controlNumber"`
	FullName          *string `json:"fullName"`
	DateOfBirth       *string `json:"dateOfBirth"`
	Profession        *string `json:"profession"`
	CompanyName       *string `json:"companyName"`
	ApplicationNumber *string `json:"applicationNumber"`
	ApplicationDate   *string `json:"applicationDate"`
	Country           *string `json:"country"`
	VisaType          *string `json:"visaType"`
	VisaIssueDate     *string `json:"visaIssueDate"`
	VisaExpiryDate    *string `json:"visaExpiryDate"`
	Status            *string `json:"status"`
	Remarks           *string `json:"remarks"`
	Note              *string `json:"note"`
}

// CandidateResponse is the authenticated view of a record.
type CandidateResponse struct {
	ID                string                 `json:"id"`
	TenantID          string                 `json:"adminId"`
	IdentityType      domain.IdentityKind    `json:"identityType"`
	PassportNumber    string                 `json:"passportNumber,omitempty"`
	ControlNumber     string                 `json:"controlNumber,omitempty"`
	FullName          string                 `json:"fullName"`
	DateOfBirth       string                 `json:"dateOfBirth"`
	Profession        string                 `json:"profession,omitempty"`
	CompanyName       string                 `json:"companyName,omitempty"`
	ApplicationNumber string                 `json:"applicationNumber"`
	ApplicationDate   string                 `json:"applicationDate"`
	Country           string                 `json:"country"`
	VisaType          string                 `json:"visaType"`
	VisaNumber        string                 `json:"visaNumber,omitempty"`
	VisaIssueDate     string                 `json:"visaIssueDate,omitempty"`
	VisaExpiryDate    string                 `json:"visaExpiryDate,omitempty"`
	Status            domain.Status          `json:"status"`
	Remarks           string                 `json:"remarks,omitempty"`
	HasPhoto          bool                   `json:"hasPhoto"`
	HasDocument       bool                   `json:"hasDocument"`
	HasArtifact       bool                   `json:"hasArtifact"`
	History           []domain.StatusEntry   `json:"statusHistory"`
	Downloads         []domain.DownloadEntry `json:"downloadHistory,omitempty"`
	IsDeleted         bool                   `json:"isDeleted"`
	DeletedAt         *time.Time             `json:"deletedAt,omitempty"`
	CreatedBy         string                 `json:"createdBy"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// ListResponse is one page of records.
type ListResponse struct {
	Items []CandidateResponse `json:"candidates"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Pages int                 `json:"pages"`
}

func toCandidateResponse(c *domain.Candidate) CandidateResponse {
	history := c.History
	if history == nil {
		history = []domain.StatusEntry{}
	}
	return CandidateResponse{
		ID:                c.ID,
		TenantID:          c.TenantID,
		IdentityType:      c.Identity.Kind(),
		PassportNumber:    c.Identity.PassportNumber(),
		ControlNumber:     c.Identity.ControlNumber(),
		FullName:          c.FullName,
		DateOfBirth:       formatDay(&c.DateOfBirth),
		Profession:        c.Profession,
		CompanyName:       c.CompanyName,
		ApplicationNumber: c.ApplicationNumber,
		ApplicationDate:   formatDay(&c.ApplicationDate),
		Country:           c.Country,
		VisaType:          c.VisaType,
		VisaNumber:        c.VisaNumber,
		VisaIssueDate:     formatDay(c.VisaIssueDate),
		VisaExpiryDate:    formatDay(c.VisaExpiryDate),
		Status:            c.Status,
		Remarks:           c.Remarks,
		HasPhoto:          c.PhotoPath != "",
		HasDocument:       c.DocumentPath != "",
		HasArtifact:       c.ArtifactPath != "",
		History:           history,
		Downloads:         c.Downloads,
		IsDeleted:         c.IsDeleted,
		DeletedAt:         c.DeletedAt,
		CreatedBy:         c.CreatedBy,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// List handles GET /api/candidates
func (h *CandidateHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	q, err := listQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.ledger.List(r.Context(), caller, q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]CandidateResponse, 0, len(res.Items))
	for _, c := range res.Items {
		items = append(items, toCandidateResponse(c))
	}
	writeData(w, http.StatusOK, ListResponse{Items: items, Total: res.Total, Page: res.Page, Limit: res.Limit, Pages: res.Pages})
}

// Create handles POST /api/candidates
func (h *CandidateHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var req CandidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.ledger.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toCandidateResponse(c))
}

// Get handles GET /api/candidates/{id}
func (h *CandidateHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	deleted := r.URL.Query().Get("deleted") == "true"
	c, err := h.ledger.Get(r.Context(), caller, r.PathValue("id"), deleted)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toCandidateResponse(c))
}

// Update handles PATCH /api/candidates/{id}
func (h *CandidateHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	var req CandidatePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.ledger.Update(r.Context(), caller, r.PathValue("id"), req.patch())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toCandidateResponse(c))
}

// Delete handles DELETE /api/candidates/{id}
func (h *CandidateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	if err := h.ledger.SoftDelete(r.Context(), caller, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Candidate deleted")
}

// Stats handles GET /api/candidates/stats
func (h *CandidateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	stats, err := h.ledger.Stats(r.Context(), caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

// Export handles GET /api/candidates/export
func (h *CandidateHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	q, err := listQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	records, err := h.ledger.Export(r.Context(), caller, q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(h.now())))
	if err := export.WriteCandidates(w, records); err != nil {
		h.logger.Error("failed to write export", slog.String("error", err.Error()))
	}
}

// Download handles GET /api/candidates/{id}/download
func (h *CandidateHandler) Download(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	handle, err := h.ledger.FetchArtifact(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	serveArtifact(w, r, h.logger, handle)
}

// Render handles POST /api/candidates/{id}/render
func (h *CandidateHandler) Render(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	if err := h.ledger.RequestRender(r.Context(), caller, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dataResponse{Success: true, Message: "Rendering requested"})
}

// Upload handles POST /api/candidates/{id}/uploads/{kind} with a multipart
// "file" field.
func (h *CandidateHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.CallerFromContext(r.Context())
	kind := domain.UploadKind(r.PathValue("kind"))

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+1<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, "File is too large")
			return
		}
		badRequest(w, "A multipart file field named \"file\" is required")
		return
	}
	defer file.Close()

	// the record must be visible and modifiable before anything is written
	if _, err := h.ledger.Get(r.Context(), caller, r.PathValue("id"), false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	path, err := h.uploads.Save(r.Context(), kind, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.ledger.AttachUpload(r.Context(), caller, r.PathValue("id"), kind, path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			h.logger.Warn("failed to remove orphaned upload", slog.String("path", path), slog.String("error", rmErr.Error()))
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Success: true, Message: "Upload stored"})
}

func serveArtifact(w http.ResponseWriter, r *http.Request, log *slog.Logger, handle *service.ArtifactHandle) {
	f, err := os.Open(handle.Path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, r, log, domain.ErrNotFound)
			return
		}
		writeError(w, r, log, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, handle.FileName))
	http.ServeContent(w, r, handle.FileName, info.ModTime(), f)
}

func listQuery(r *http.Request) (service.ListQuery, error) {
	q := r.URL.Query()
	out := service.ListQuery{
		Status:  q.Get("status"),
		Search:  q.Get("search"),
		Deleted: q.Get("deleted") == "true",
	}
	var err error
	if v := q.Get("page"); v != "" {
		if out.Page, err = strconv.Atoi(v); err != nil {
			return out, domain.NewValidationError("page must be a number")
		}
	}
	if v := q.Get("limit"); v != "" {
		if out.Limit, err = strconv.Atoi(v); err != nil {
			return out, domain.NewValidationError("limit must be a number")
		}
	}
	return out, nil
}

func (req CandidateRequest) input() (service.CandidateInput, error) {
	in := service.CandidateInput{
		IdentityType:      req.IdentityType,
		IdentityNumber:    req.PassportNumber,
		FullName:          req.FullName,
		Profession:        req.Profession,
		CompanyName:       req.CompanyName,
		ApplicationNumber: req.ApplicationNumber,
		Country:           req.Country,
		VisaType:          req.VisaType,
		Status:            req.Status,
		Remarks:           req.Remarks,
	}
	if req.ControlNumber != "" && req.PassportNumber != "" {
		return in, domain.NewValidationError("provide either passportNumber or controlNumber, not both")
	}
	if req.ControlNumber != "" {
		in.IdentityType = string(domain.IdentityControl)
		in.IdentityNumber = req.ControlNumber
	}

	// missing required dates are reported by the ledger with the other
	// required fields; only malformed values are rejected here
	var msgs []string
	parse := func(field, v string) *time.Time {
		if v == "" {
			return nil
		}
		t, err := service.ParseDate(v)
		if err != nil {
			msgs = append(msgs, field+" must be a date (YYYY-MM-DD)")
			return nil
		}
		return &t
	}
	if t := parse("dateOfBirth", req.DateOfBirth); t != nil {
		in.DateOfBirth = *t
	}
	if t := parse("applicationDate", req.ApplicationDate); t != nil {
		in.ApplicationDate = *t
	}
	in.VisaIssueDate = parse("visaIssueDate", req.VisaIssueDate)
	in.VisaExpiryDate = parse("visaExpiryDate", req.VisaExpiryDate)
	if len(msgs) > 0 {
		return in, domain.NewValidationError(msgs...)
	}
	return in, nil
}

func (req CandidatePatchRequest) patch() service.CandidatePatch {
	p := service.CandidatePatch{
		IdentityType:      req.IdentityType,
		IdentityNumber:    req.PassportNumber,
		FullName:          req.FullName,
		DateOfBirth:       req.DateOfBirth,
		Profession:        req.Profession,
		CompanyName:       req.CompanyName,
		ApplicationNumber: req.ApplicationNumber,
		ApplicationDate:   req.ApplicationDate,
		Country:           req.Country,
		VisaType:          req.VisaType,
		VisaIssueDate:     req.VisaIssueDate,
		VisaExpiryDate:    req.VisaExpiryDate,
		Status:            req.Status,
		Remarks:           req.Remarks,
		Note:              req.Note,
	}
	if req.ControlNumber != nil {
		control := string(domain.IdentityControl)
		p.IdentityType = &control
		p.IdentityNumber = req.ControlNumber
	}
	return p
}

func formatDay(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/ids"
	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
	"github.com/MdWarishh/visa-management-backend/pkg/cache"
)

const (
	DefaultPageLimit = 15
	MaxPageLimit     = 100
	ExportLimit      = 10000
	statsTTL         = 30 * time.Second
)

// DefaultIssuanceStatuses are the statuses that trigger allocation and rendering.
var DefaultIssuanceStatuses = []domain.Status{domain.StatusIssued}

// LedgerConfig holds candidate ledger settings.
type LedgerConfig struct {
	IssuanceStatuses []domain.Status
}

// CandidateLedger is the tenant-scoped candidate store with lifecycle rules.
// Every operation takes the resolved Caller explicitly.
type CandidateLedger struct {
	candidates domain.CandidateRepository
	allocator  *IdentifierAllocator
	renders    domain.RenderQueue
	resolver   *security.TenancyResolver
	audit      *audit.Logger
	stats      *cache.Cache[domain.CandidateStats]
	issuance   map[domain.Status]bool
	now        func() time.Time
	logger     *slog.Logger
}

// LedgerOption configures a CandidateLedger.
type LedgerOption func(*CandidateLedger)

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *CandidateLedger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewCandidateLedger(
	candidates domain.CandidateRepository,
	allocator *IdentifierAllocator,
	renders domain.RenderQueue,
	resolver *security.TenancyResolver,
	auditLogger *audit.Logger,
	cfg LedgerConfig,
	logger *slog.Logger,
	opts ...LedgerOption,
) *CandidateLedger {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(logger)
	}
	statuses := cfg.IssuanceStatuses
	if len(statuses) == 0 {
		statuses = DefaultIssuanceStatuses
	}
	issuance := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		issuance[s] = true
	}

	l := &CandidateLedger{
		candidates: candidates,
		allocator:  allocator,
		renders:    renders,
		resolver:   resolver,
		audit:      auditLogger,
		stats:      cache.New[domain.CandidateStats](statsTTL),
		issuance:   issuance,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsIssuanceEligible reports whether s triggers allocation and rendering.
func (l *CandidateLedger) IsIssuanceEligible(s domain.Status) bool {
	return l.issuance[s]
}

// IssuanceStatuses lists the configured issuance-eligible statuses.
func (l *CandidateLedger) IssuanceStatuses() []domain.Status {
	out := make([]domain.Status, 0, len(l.issuance))
	for _, s := range domain.Statuses {
		if l.issuance[s] {
			out = append(out, s)
		}
	}
	return out
}

// CandidateInput carries the fields of a new record.
type CandidateInput struct {
	IdentityType      string
	IdentityNumber    string
	FullName          string
	DateOfBirth       time.Time
	Profession        string
	CompanyName       string
	ApplicationNumber string
	ApplicationDate   time.Time
	Country           string
	VisaType          string
	VisaIssueDate     *time.Time
	VisaExpiryDate    *time.Time
	Status            string
	Remarks           string
}

// CandidatePatch is a partial update. A nil field is left untouched; a
// non-nil empty string clears the stored value. Dates use YYYY-MM-DD or
// RFC 3339.
type CandidatePatch struct {
	IdentityType      *string
	IdentityNumber    *string
	FullName          *string
	DateOfBirth       *string
	Profession        *string
	CompanyName       *string
	ApplicationNumber *string
	ApplicationDate   *string
	Country           *string
	VisaType          *string
	VisaIssueDate     *string
	VisaExpiryDate    *string
	Status            *string
	Remarks           *string
	Note              *string
}

// ListQuery selects a page of records.
type ListQuery struct {
	Status  string
	Search  string
	Deleted bool
	Page    int
	Limit   int
}

// ListResult is one page of records.
type ListResult struct {
	Items []*domain.Candidate `json:"items"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Pages int                 `json:"pages"`
}

// PublicView is the reduced projection returned to unauthenticated callers.
type PublicView struct {
	CandidateID     string        `json:"candidateId,omitempty"`
	FullName        string        `json:"fullName"`
	VisaType        string        `json:"visaType"`
	Country         string        `json:"country"`
	Status          domain.Status `json:"status"`
	ApplicationDate time.Time     `json:"applicationDate"`
	IssueDate       *time.Time    `json:"issueDate"`
	CanDownload     bool          `json:"canDownload"`
}

// ArtifactHandle points at a rendered document.
type ArtifactHandle struct {
	Path     string
	FileName string
}

// Create inserts a new record in the caller's tenant.
func (l *CandidateLedger) Create(ctx context.Context, caller domain.Caller, in CandidateInput) (c *domain.Candidate, err error) {
	defer func() { metrics.ObserveLedger("create", err) }()

	if err := l.resolver.Require(caller, domain.CapCreate); err != nil {
		return nil, err
	}
	tenantID, err := createTenant(caller.Scope)
	if err != nil {
		return nil, err
	}

	identity, ok := domain.NewIdentityProof(in.IdentityType, in.IdentityNumber)
	if !ok {
		return nil, domain.NewValidationError("identityType must be passport or control")
	}
	if err := validateRequired(identity, in); err != nil {
		return nil, err
	}

	status := domain.StatusPending
	if strings.TrimSpace(in.Status) != "" {
		s, ok := domain.ParseStatus(in.Status)
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("unknown status %q", in.Status))
		}
		if l.IsIssuanceEligible(s) {
			return nil, domain.NewValidationError(fmt.Sprintf("records cannot be created as %s", s))
		}
		status = s
	}

	now := l.now()
	c = &domain.Candidate{
		ID:                ids.New(),
		TenantID:          tenantID,
		Identity:          identity,
		FullName:          strings.TrimSpace(in.FullName),
		DateOfBirth:       dateOnly(in.DateOfBirth),
		Profession:        strings.TrimSpace(in.Profession),
		CompanyName:       strings.TrimSpace(in.CompanyName),
		ApplicationNumber: domain.NormalizeIdentifier(in.ApplicationNumber),
		ApplicationDate:   in.ApplicationDate.UTC(),
		Country:           strings.TrimSpace(in.Country),
		VisaType:          strings.TrimSpace(in.VisaType),
		VisaIssueDate:     in.VisaIssueDate,
		VisaExpiryDate:    in.VisaExpiryDate,
		Status:            status,
		Remarks:           strings.TrimSpace(in.Remarks),
		CreatedBy:         caller.Principal.ID,
		CreatedAt:         now,
		History: []domain.StatusEntry{{
			Status:    status,
			Actor:     caller.Actor(),
			Note:      "Application created",
			Timestamp: now,
		}},
	}

	if err := l.candidates.Insert(ctx, c); err != nil {
		return nil, err
	}
	l.invalidateStats(tenantID)
	l.audit.LogCandidate(ctx, tenantID, caller.Actor(), "candidate_created", c.ID, c.ApplicationNumber)

	return l.candidates.GetByID(ctx, c.ID)
}

// Update applies a partial patch to a live record inside the caller's scope.
func (l *CandidateLedger) Update(ctx context.Context, caller domain.Caller, id string, patch CandidatePatch) (c *domain.Candidate, err error) {
	defer func() { metrics.ObserveLedger("update", err) }()

	if err := l.resolver.Require(caller, domain.CapModify); err != nil {
		return nil, err
	}
	filter, ok := security.EffectiveFilter(caller.Scope, domain.CandidateFilter{})
	if !ok {
		return nil, domain.ErrNotFound
	}
	c, err = l.candidates.Get(ctx, filter, id)
	if err != nil {
		return nil, err
	}

	previous := c.Status
	if err := applyPatch(c, patch); err != nil {
		return nil, err
	}

	var entry *domain.StatusEntry
	if c.Status != previous {
		if !domain.CanTransition(previous, c.Status) {
			return nil, domain.NewValidationError(fmt.Sprintf("cannot change status from %s to %s", previous, c.Status))
		}
		entry = &domain.StatusEntry{
			Status:    c.Status,
			Actor:     caller.Actor(),
			Timestamp: l.now(),
		}
		if patch.Note != nil {
			entry.Note = strings.TrimSpace(*patch.Note)
		}
	}

	issuing := entry != nil && l.IsIssuanceEligible(c.Status)
	if issuing && c.VisaNumber == "" {
		if c.VisaIssueDate == nil {
			t := dateOnly(l.now())
			c.VisaIssueDate = &t
		}
		// The number lands only if the conditional status write commits.
		_, err := l.allocator.Reserve(ctx, c.ID, func(ctx context.Context, number string) (string, error) {
			c.VisaNumber = number
			if err := l.candidates.Update(ctx, c, previous, entry); err != nil {
				return "", err
			}
			return c.VisaNumber, nil
		})
		if err != nil {
			return nil, err
		}
	} else if err := l.candidates.Update(ctx, c, previous, entry); err != nil {
		return nil, err
	}
	l.invalidateStats(c.TenantID)

	if entry != nil {
		l.audit.LogCandidate(ctx, c.TenantID, caller.Actor(), "candidate_status_changed", c.ID,
			fmt.Sprintf("%s -> %s", previous, c.Status))
	} else {
		l.audit.LogCandidate(ctx, c.TenantID, caller.Actor(), "candidate_updated", c.ID, "")
	}

	if issuing {
		l.emitRender(ctx, c.ID, "transition")
	}

	return l.candidates.Get(ctx, filter, id)
}

// SoftDelete flags a record as deleted.
func (l *CandidateLedger) SoftDelete(ctx context.Context, caller domain.Caller, id string) (err error) {
	defer func() { metrics.ObserveLedger("delete", err) }()

	if err := l.resolver.Require(caller, domain.CapDelete); err != nil {
		return err
	}
	filter, ok := security.EffectiveFilter(caller.Scope, domain.CandidateFilter{})
	if !ok {
		return domain.ErrNotFound
	}
	if err := l.candidates.SoftDelete(ctx, filter, id, l.now()); err != nil {
		return err
	}
	tenantID := filter.TenantID
	if c, err := l.candidates.GetByID(ctx, id); err == nil {
		tenantID = c.TenantID
	} else {
		l.logger.Warn("failed to read deleted record",
			slog.String("candidate_id", id),
			slog.String("error", err.Error()),
		)
	}
	l.invalidateStats(tenantID)
	l.audit.LogCandidate(ctx, tenantID, caller.Actor(), "candidate_deleted", id, "")
	return nil
}

// Get returns one record inside the caller's scope.
func (l *CandidateLedger) Get(ctx context.Context, caller domain.Caller, id string, deleted bool) (*domain.Candidate, error) {
	if deleted && caller.Principal.Tier == domain.TierUser {
		return nil, fmt.Errorf("%w: deleted records are restricted", domain.ErrForbidden)
	}
	filter, ok := security.EffectiveFilter(caller.Scope, domain.CandidateFilter{Deleted: deleted})
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l.candidates.Get(ctx, filter, id)
}

// List returns a page of records inside the caller's scope.
func (l *CandidateLedger) List(ctx context.Context, caller domain.Caller, q ListQuery) (*ListResult, error) {
	filter, err := l.listFilter(caller, q)
	if err != nil {
		return nil, err
	}
	page := normalizePage(q.Page, q.Limit)
	res := &ListResult{Items: []*domain.Candidate{}, Page: page.Number, Limit: page.Limit}
	if filter == nil {
		return res, nil
	}

	items, total, err := l.candidates.List(ctx, *filter, page)
	if err != nil {
		return nil, err
	}
	res.Items = items
	res.Total = total
	res.Pages = (total + page.Limit - 1) / page.Limit
	return res, nil
}

// Export returns every matching record for the export collaborator.
func (l *CandidateLedger) Export(ctx context.Context, caller domain.Caller, q ListQuery) ([]*domain.Candidate, error) {
	if err := l.resolver.Require(caller, domain.CapExport); err != nil {
		return nil, err
	}
	filter, err := l.listFilter(caller, q)
	if err != nil || filter == nil {
		return []*domain.Candidate{}, err
	}
	items, _, err := l.candidates.List(ctx, *filter, domain.Page{Number: 1, Limit: ExportLimit})
	if err != nil {
		return nil, err
	}
	l.audit.LogCandidate(ctx, filter.TenantID, caller.Actor(), "candidates_exported", "", fmt.Sprintf("%d records", len(items)))
	return items, nil
}

// listFilter builds the effective filter. A nil filter means the scope is
// empty and nothing can match.
func (l *CandidateLedger) listFilter(caller domain.Caller, q ListQuery) (*domain.CandidateFilter, error) {
	if q.Deleted && caller.Principal.Tier == domain.TierUser {
		return nil, fmt.Errorf("%w: deleted records are restricted", domain.ErrForbidden)
	}
	base := domain.CandidateFilter{Deleted: q.Deleted, Search: strings.TrimSpace(q.Search)}
	if strings.TrimSpace(q.Status) != "" {
		s, ok := domain.ParseStatus(q.Status)
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("unknown status %q", q.Status))
		}
		base.Status = s
	}
	filter, ok := security.EffectiveFilter(caller.Scope, base)
	if !ok {
		return nil, nil
	}
	return &filter, nil
}

// Stats summarizes the caller's scope. Results are cached briefly.
func (l *CandidateLedger) Stats(ctx context.Context, caller domain.Caller) (domain.CandidateStats, error) {
	filter, ok := security.EffectiveFilter(caller.Scope, domain.CandidateFilter{})
	if !ok {
		return domain.CandidateStats{ByStatus: map[domain.Status]int{}}, nil
	}
	key := statsKey(filter.TenantID)
	if s, ok := l.stats.Get(key); ok {
		return s, nil
	}

	now := l.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	s, err := l.candidates.Stats(ctx, filter, monthStart)
	if err != nil {
		return domain.CandidateStats{}, err
	}
	l.stats.Set(key, *s)
	return *s, nil
}

// FetchArtifact returns the rendered document for an authenticated caller.
func (l *CandidateLedger) FetchArtifact(ctx context.Context, caller domain.Caller, id string) (*ArtifactHandle, error) {
	if err := l.resolver.Require(caller, domain.CapDownload); err != nil {
		return nil, err
	}
	c, err := l.Get(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}
	if c.ArtifactPath == "" {
		return nil, fmt.Errorf("%w: document has not been rendered", domain.ErrNotFound)
	}
	l.audit.LogCandidate(ctx, c.TenantID, caller.Actor(), "artifact_downloaded", c.ID, "")
	return artifactHandle(c), nil
}

// RequestRender re-emits the render event for an issued record.
func (l *CandidateLedger) RequestRender(ctx context.Context, caller domain.Caller, id string) error {
	if err := l.resolver.Require(caller, domain.CapModify); err != nil {
		return err
	}
	c, err := l.Get(ctx, caller, id, false)
	if err != nil {
		return err
	}
	if !l.IsIssuanceEligible(c.Status) {
		return domain.NewValidationError(fmt.Sprintf("status %s does not produce a document", c.Status))
	}
	if err := l.renders.Publish(ctx, domain.RenderRequest{CandidateID: c.ID, RequestedAt: l.now()}); err != nil {
		metrics.ObserveRenderQueued("manual", err)
		return fmt.Errorf("%w: %v", domain.ErrRenderingFailed, err)
	}
	metrics.ObserveRenderQueued("manual", nil)
	l.audit.LogCandidate(ctx, c.TenantID, caller.Actor(), "render_requested", c.ID, "")
	return nil
}

// AttachUpload records a stored upload on a record.
func (l *CandidateLedger) AttachUpload(ctx context.Context, caller domain.Caller, id string, kind domain.UploadKind, path string) error {
	if err := l.resolver.Require(caller, domain.CapModify); err != nil {
		return err
	}
	c, err := l.Get(ctx, caller, id, false)
	if err != nil {
		return err
	}
	if err := l.candidates.SetUpload(ctx, c.ID, kind, path); err != nil {
		return err
	}
	l.audit.LogCandidate(ctx, c.TenantID, caller.Actor(), "upload_attached", c.ID, string(kind))
	return nil
}

// AttachArtifact stores the rendered document path. Used by the render worker.
func (l *CandidateLedger) AttachArtifact(ctx context.Context, id, path string) error {
	return l.candidates.SetArtifact(ctx, id, path)
}

// TrackPublic looks a record up by identifier and date of birth.
func (l *CandidateLedger) TrackPublic(ctx context.Context, identifier string, dob time.Time) (view *PublicView, err error) {
	defer func() { metrics.ObservePublicLookup("track", err) }()

	c, err := l.findPublic(ctx, "", identifier, dob)
	if err != nil {
		return nil, err
	}
	view = &PublicView{
		FullName:        c.FullName,
		VisaType:        c.VisaType,
		Country:         c.Country,
		Status:          c.Status,
		ApplicationDate: c.ApplicationDate,
		IssueDate:       c.VisaIssueDate,
		CanDownload:     l.IsIssuanceEligible(c.Status) && c.ArtifactPath != "",
	}
	if view.CanDownload {
		view.CandidateID = c.ID
	}
	return view, nil
}

// FetchArtifactPublic repeats the public match for id and logs the download.
func (l *CandidateLedger) FetchArtifactPublic(ctx context.Context, id, identifier string, dob time.Time, origin string) (h *ArtifactHandle, err error) {
	defer func() { metrics.ObservePublicLookup("download", err) }()

	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNoPublicMatch
	}
	c, err := l.findPublic(ctx, id, identifier, dob)
	if err != nil {
		return nil, err
	}
	if !l.IsIssuanceEligible(c.Status) {
		return nil, fmt.Errorf("%w: visa not yet issued", domain.ErrForbidden)
	}
	if c.ArtifactPath == "" {
		return nil, fmt.Errorf("%w: document not available, contact your agent", domain.ErrNotFound)
	}

	if origin == "" {
		origin = "unknown"
	}
	if err := l.candidates.AppendDownload(ctx, c.ID, domain.DownloadEntry{At: l.now(), Origin: origin}); err != nil {
		return nil, err
	}
	l.audit.LogCandidate(ctx, c.TenantID, "public", "artifact_downloaded", c.ID, origin)
	return artifactHandle(c), nil
}

func (l *CandidateLedger) findPublic(ctx context.Context, id, identifier string, dob time.Time) (*domain.Candidate, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	if identifier == "" || dob.IsZero() {
		return nil, domain.NewValidationError("date of birth and an application or passport number are required")
	}
	from := dateOnly(dob)
	c, err := l.candidates.FindPublic(ctx, domain.PublicMatch{
		ID:         id,
		Identifier: identifier,
		DOBFrom:    from,
		DOBTo:      from.AddDate(0, 0, 1),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoPublicMatch
		}
		return nil, err
	}
	return c, nil
}

// emitRender publishes a render request after a committed write. Failure is
// logged and never returned.
func (l *CandidateLedger) emitRender(ctx context.Context, id, source string) {
	err := l.renders.Publish(ctx, domain.RenderRequest{CandidateID: id, RequestedAt: l.now()})
	metrics.ObserveRenderQueued(source, err)
	if err != nil {
		l.logger.Error("failed to queue render",
			slog.String("candidate_id", id),
			slog.String("error", fmt.Errorf("%w: %v", domain.ErrRenderingFailed, err).Error()),
		)
	}
}

func (l *CandidateLedger) invalidateStats(tenantID string) {
	l.stats.Delete(statsKey(tenantID))
	l.stats.Delete(statsKey(""))
}

func statsKey(tenantID string) string {
	if tenantID == "" {
		return "stats:*"
	}
	return "stats:" + tenantID
}

func createTenant(scope domain.Scope) (string, error) {
	switch scope.Kind {
	case domain.ScopeTenant:
		return scope.TenantID, nil
	case domain.ScopeAll:
		return "", domain.NewValidationError("a target tenant is required to create records")
	}
	return "", fmt.Errorf("%w: no tenant access", domain.ErrForbidden)
}

func validateRequired(identity domain.IdentityProof, in CandidateInput) error {
	var personal, application []string
	if strings.TrimSpace(in.FullName) == "" {
		personal = append(personal, "fullName")
	}
	if in.DateOfBirth.IsZero() {
		personal = append(personal, "dateOfBirth")
	}
	if identity.IsZero() {
		personal = append(personal, "identityNumber")
	}
	if strings.TrimSpace(in.ApplicationNumber) == "" {
		application = append(application, "applicationNumber")
	}
	if in.ApplicationDate.IsZero() {
		application = append(application, "applicationDate")
	}
	if strings.TrimSpace(in.Country) == "" {
		application = append(application, "country")
	}
	if strings.TrimSpace(in.VisaType) == "" {
		application = append(application, "visaType")
	}

	var msgs []string
	if len(personal) > 0 {
		msgs = append(msgs, "personal details are required: "+strings.Join(personal, ", "))
	}
	if len(application) > 0 {
		msgs = append(msgs, "application details are required: "+strings.Join(application, ", "))
	}
	if len(msgs) > 0 {
		return domain.NewValidationError(msgs...)
	}
	return nil
}

// applyPatch writes the present fields of p onto c.
func applyPatch(c *domain.Candidate, p CandidatePatch) error {
	var errs []string
	required := func(name string, v *string, dst *string, norm func(string) string) {
		if v == nil {
			return
		}
		s := norm(*v)
		if s == "" {
			errs = append(errs, name+" cannot be empty")
			return
		}
		*dst = s
	}
	optional := func(v *string, dst *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}

	required("fullName", p.FullName, &c.FullName, strings.TrimSpace)
	required("applicationNumber", p.ApplicationNumber, &c.ApplicationNumber, domain.NormalizeIdentifier)
	required("country", p.Country, &c.Country, strings.TrimSpace)
	required("visaType", p.VisaType, &c.VisaType, strings.TrimSpace)
	optional(p.Profession, &c.Profession)
	optional(p.CompanyName, &c.CompanyName)
	optional(p.Remarks, &c.Remarks)

	if p.IdentityType != nil || p.IdentityNumber != nil {
		kind, number := string(c.Identity.Kind()), c.Identity.Value()
		if p.IdentityType != nil {
			kind = *p.IdentityType
		}
		if p.IdentityNumber != nil {
			number = *p.IdentityNumber
		}
		proof, ok := domain.NewIdentityProof(kind, number)
		switch {
		case !ok:
			errs = append(errs, "identityType must be passport or control")
		case proof.IsZero():
			errs = append(errs, "identityNumber cannot be empty")
		default:
			c.Identity = proof
		}
	}

	for _, d := range []struct {
		name     string
		v        *string
		required bool
		set      func(*time.Time)
	}{
		{"dateOfBirth", p.DateOfBirth, true, func(t *time.Time) { c.DateOfBirth = dateOnly(*t) }},
		{"applicationDate", p.ApplicationDate, true, func(t *time.Time) { c.ApplicationDate = t.UTC() }},
		{"visaIssueDate", p.VisaIssueDate, false, func(t *time.Time) { c.VisaIssueDate = t }},
		{"visaExpiryDate", p.VisaExpiryDate, false, func(t *time.Time) { c.VisaExpiryDate = t }},
	} {
		if d.v == nil {
			continue
		}
		if strings.TrimSpace(*d.v) == "" {
			if d.required {
				errs = append(errs, d.name+" cannot be empty")
			} else {
				d.set(nil)
			}
			continue
		}
		t, err := ParseDate(*d.v)
		if err != nil {
			errs = append(errs, d.name+" must be a date")
			continue
		}
		d.set(&t)
	}

	if p.Status != nil {
		s, ok := domain.ParseStatus(*p.Status)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown status %q", *p.Status))
		} else {
			c.Status = s
		}
	}

	if len(errs) > 0 {
		return domain.NewValidationError(errs...)
	}
	return nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// dateOnly truncates t to its calendar day at UTC midnight.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizePage(number, limit int) domain.Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return domain.Page{Number: number, Limit: limit}
}

func artifactHandle(c *domain.Candidate) *ArtifactHandle {
	return &ArtifactHandle{
		Path:     c.ArtifactPath,
		FileName: fmt.Sprintf("Visa-%s.pdf", c.ApplicationNumber),
	}
}

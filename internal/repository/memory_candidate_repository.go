package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// MemoryCandidateRepository keeps candidates in process and enforces the same
// uniqueness rules as the Postgres partial indexes.
type MemoryCandidateRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Candidate
	now  func() time.Time
}

func NewMemoryCandidateRepository() *MemoryCandidateRepository {
	return &MemoryCandidateRepository{byID: map[string]*domain.Candidate{}, now: time.Now}
}

func cloneCandidate(c *domain.Candidate) *domain.Candidate {
	out := *c
	out.History = append([]domain.StatusEntry(nil), c.History...)
	out.Downloads = append([]domain.DownloadEntry(nil), c.Downloads...)
	if c.VisaIssueDate != nil {
		t := *c.VisaIssueDate
		out.VisaIssueDate = &t
	}
	if c.VisaExpiryDate != nil {
		t := *c.VisaExpiryDate
		out.VisaExpiryDate = &t
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// uniqueViolation checks c against every other live record.
func (m *MemoryCandidateRepository) uniqueViolation(c *domain.Candidate) error {
	for id, other := range m.byID {
		if id == c.ID {
			continue
		}
		if c.VisaNumber != "" && other.VisaNumber == c.VisaNumber {
			return &domain.ConflictError{Field: "visaNumber", Value: c.VisaNumber}
		}
		if other.IsDeleted || c.IsDeleted || other.TenantID != c.TenantID {
			continue
		}
		if other.ApplicationNumber == c.ApplicationNumber {
			return &domain.ConflictError{Field: "applicationNumber", Value: c.ApplicationNumber}
		}
		if pn := c.Identity.PassportNumber(); pn != "" && other.Identity.PassportNumber() == pn {
			return &domain.ConflictError{Field: "passportNumber", Value: pn}
		}
		if cn := c.Identity.ControlNumber(); cn != "" && other.Identity.ControlNumber() == cn {
			return &domain.ConflictError{Field: "controlNumber", Value: cn}
		}
	}
	return nil
}

func (m *MemoryCandidateRepository) Insert(_ context.Context, c *domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uniqueViolation(c); err != nil {
		return err
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.byID[c.ID] = cloneCandidate(c)
	return nil
}

func matchesFilter(c *domain.Candidate, f domain.CandidateFilter) bool {
	if c.IsDeleted != f.Deleted {
		return false
	}
	if f.TenantID != "" && c.TenantID != f.TenantID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		fields := []string{
			c.FullName,
			c.Identity.PassportNumber(),
			c.Identity.ControlNumber(),
			c.ApplicationNumber,
			c.VisaNumber,
		}
		hit := false
		for _, v := range fields {
			if v != "" && strings.Contains(strings.ToLower(v), q) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (m *MemoryCandidateRepository) Get(_ context.Context, filter domain.CandidateFilter, id string) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || !matchesFilter(c, filter) {
		return nil, domain.ErrNotFound
	}
	return cloneCandidate(c), nil
}

func (m *MemoryCandidateRepository) GetByID(_ context.Context, id string) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCandidate(c), nil
}

func (m *MemoryCandidateRepository) sorted(match func(*domain.Candidate) bool) []*domain.Candidate {
	out := []*domain.Candidate{}
	for _, c := range m.byID {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryCandidateRepository) List(_ context.Context, filter domain.CandidateFilter, page domain.Page) ([]*domain.Candidate, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(c *domain.Candidate) bool { return matchesFilter(c, filter) })
	total := len(all)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	out := make([]*domain.Candidate, 0, end-start)
	for _, c := range all[start:end] {
		cp := cloneCandidate(c)
		cp.Downloads = nil
		out = append(out, cp)
	}
	return out, total, nil
}

func (m *MemoryCandidateRepository) Update(_ context.Context, c *domain.Candidate, expected domain.Status, entry *domain.StatusEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[c.ID]
	if !ok || cur.IsDeleted {
		return domain.ErrNotFound
	}
	if cur.Status != expected {
		return domain.ErrStaleStatus
	}
	next := cloneCandidate(c)
	next.TenantID = cur.TenantID
	if cur.VisaNumber != "" {
		next.VisaNumber = cur.VisaNumber
	}
	next.History = cur.History
	next.Downloads = cur.Downloads
	next.IsDeleted = cur.IsDeleted
	next.DeletedAt = cur.DeletedAt
	next.CreatedAt = cur.CreatedAt
	if err := m.uniqueViolation(next); err != nil {
		return err
	}
	if entry != nil {
		next.History = append(append([]domain.StatusEntry(nil), cur.History...), *entry)
	}
	next.UpdatedAt = m.now()
	m.byID[c.ID] = next
	c.VisaNumber = next.VisaNumber
	c.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryCandidateRepository) SoftDelete(_ context.Context, filter domain.CandidateFilter, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || (filter.TenantID != "" && c.TenantID != filter.TenantID) {
		return domain.ErrNotFound
	}
	if c.IsDeleted {
		return domain.ErrAlreadyDeleted
	}
	t := at
	c.IsDeleted = true
	c.DeletedAt = &t
	c.UpdatedAt = at
	return nil
}

func (m *MemoryCandidateRepository) VisaNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.VisaNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryCandidateRepository) AssignVisaNumber(_ context.Context, id, number string, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.VisaNumber != "" {
		return &domain.ConflictError{Field: "visaNumber", Value: c.VisaNumber}
	}
	for _, other := range m.byID {
		if other.VisaNumber == number {
			return &domain.ConflictError{Field: "visaNumber", Value: number}
		}
	}
	c.VisaNumber = number
	if c.VisaIssueDate == nil {
		t := issuedAt
		c.VisaIssueDate = &t
	}
	c.UpdatedAt = issuedAt
	return nil
}

func (m *MemoryCandidateRepository) SetArtifact(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.ArtifactPath = path
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryCandidateRepository) SetUpload(_ context.Context, id string, kind domain.UploadKind, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch kind {
	case domain.UploadPhoto:
		c.PhotoPath = path
	case domain.UploadDocument:
		c.DocumentPath = path
	default:
		return domain.NewValidationError("unknown upload kind")
	}
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryCandidateRepository) FindPublic(_ context.Context, match domain.PublicMatch) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.sorted(func(c *domain.Candidate) bool { return !c.IsDeleted }) {
		if c.DateOfBirth.Before(match.DOBFrom) || !c.DateOfBirth.Before(match.DOBTo) {
			continue
		}
		if match.ID != "" && c.ID != match.ID {
			continue
		}
		if c.ApplicationNumber == match.Identifier || c.Identity.Value() == match.Identifier {
			return cloneCandidate(c), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryCandidateRepository) AppendDownload(_ context.Context, id string, entry domain.DownloadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Downloads = append(c.Downloads, entry)
	return nil
}

func (m *MemoryCandidateRepository) Stats(_ context.Context, filter domain.CandidateFilter, monthStart time.Time) (*domain.CandidateStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.CandidateStats{ByStatus: map[domain.Status]int{}}
	for _, s := range domain.Statuses {
		stats.ByStatus[s] = 0
	}
	for _, c := range m.byID {
		if filter.TenantID != "" && c.TenantID != filter.TenantID {
			continue
		}
		if c.IsDeleted {
			stats.Deleted++
			continue
		}
		stats.Total++
		stats.ByStatus[c.Status]++
		if !c.CreatedAt.Before(monthStart) {
			stats.ThisMonth++
		}
	}
	return stats, nil
}

func (m *MemoryCandidateRepository) ListMissingArtifacts(_ context.Context, statuses []domain.Status, limit int) ([]*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eligible := map[domain.Status]bool{}
	for _, s := range statuses {
		eligible[s] = true
	}
	out := []*domain.Candidate{}
	for _, c := range m.sorted(func(c *domain.Candidate) bool {
		return !c.IsDeleted && c.ArtifactPath == "" && eligible[c.Status]
	}) {
		if len(out) == limit {
			break
		}
		out = append(out, cloneCandidate(c))
	}
	return out, nil
}

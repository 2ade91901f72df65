package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// MemoryPrincipalRepository is an in-process credential store. Every method
// runs under one mutex, which gives the same atomicity the Postgres store gets
// from single-statement updates.
type MemoryPrincipalRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Principal
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryPrincipalRepository() *MemoryPrincipalRepository {
	return &MemoryPrincipalRepository{
		byID:    map[string]*domain.Principal{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	out := *p
	if p.LockedUntil != nil {
		t := *p.LockedUntil
		out.LockedUntil = &t
	}
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

func (m *MemoryPrincipalRepository) Create(_ context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[p.Email]; taken {
		return &domain.ConflictError{Field: "email", Value: p.Email}
	}
	now := m.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.byID[p.ID] = clonePrincipal(p)
	m.byEmail[p.Email] = p.ID
	return nil
}

func (m *MemoryPrincipalRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (m *MemoryPrincipalRepository) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrincipal(m.byID[id]), nil
}

func (m *MemoryPrincipalRepository) Update(_ context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Email != cur.Email {
		if _, taken := m.byEmail[p.Email]; taken {
			return &domain.ConflictError{Field: "email", Value: p.Email}
		}
		delete(m.byEmail, cur.Email)
		m.byEmail[p.Email] = p.ID
	}
	cur.Name = p.Name
	cur.Email = p.Email
	cur.Capabilities = p.Capabilities
	cur.IsActive = p.IsActive
	cur.UpdatedAt = m.now()
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

func (m *MemoryPrincipalRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.byEmail, p.Email)
	delete(m.byID, id)
	return nil
}

func (m *MemoryPrincipalRepository) list(match func(*domain.Principal) bool) []*domain.Principal {
	out := []*domain.Principal{}
	for _, p := range m.byID {
		if match(p) {
			out = append(out, clonePrincipal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryPrincipalRepository) ListByTier(_ context.Context, tier domain.Tier) ([]*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(p *domain.Principal) bool { return p.Tier == tier }), nil
}

func (m *MemoryPrincipalRepository) ListByCreator(_ context.Context, creatorID string) ([]*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(p *domain.Principal) bool { return p.CreatedBy == creatorID }), nil
}

func (m *MemoryPrincipalRepository) CountByTier(_ context.Context, tier domain.Tier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.byID {
		if p.Tier == tier {
			n++
		}
	}
	return n, nil
}

func (m *MemoryPrincipalRepository) RecordFailedAttempt(_ context.Context, id string, threshold int, now, lockUntil time.Time) (domain.FailedAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.FailedAttempt{}, domain.ErrNotFound
	}
	if p.LockedUntil != nil && !p.LockedUntil.After(now) {
		p.FailedAttempts = 0
		p.LockedUntil = nil
	}
	p.FailedAttempts++
	if p.FailedAttempts >= threshold && p.LockedUntil == nil {
		t := lockUntil
		p.LockedUntil = &t
	}
	p.UpdatedAt = now
	res := domain.FailedAttempt{Attempts: p.FailedAttempts}
	if p.LockedUntil != nil {
		t := *p.LockedUntil
		res.LockedUntil = &t
	}
	return res, nil
}

func (m *MemoryPrincipalRepository) RecordSuccessfulLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil
	t := at
	p.LastLoginAt = &t
	p.UpdatedAt = at
	return nil
}

func (m *MemoryPrincipalRepository) ResetSecret(_ context.Context, id, secretHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.SecretHash = secretHash
	p.FailedAttempts = 0
	p.LockedUntil = nil
	p.UpdatedAt = m.now()
	return nil
}

package domain

import (
	"context"
	"strings"
	"time"
)

// Tier is the role tier of a principal.
type Tier string

const (
	TierOwner Tier = "superadmin"
	TierAdmin Tier = "admin"
	TierUser  Tier = "user"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierOwner, TierAdmin, TierUser:
		return true
	}
	return false
}

// Capability names one class of operation a principal may perform.
type Capability string

const (
	CapCreate   Capability = "create"
	CapModify   Capability = "modify"
	CapDelete   Capability = "delete"
	CapExport   Capability = "export"
	CapDownload Capability = "download"
	CapView     Capability = "view"
)

// Capabilities holds the stored permission bits of a restricted user.
type Capabilities struct {
	CanCreate   bool `json:"canCreate"`
	CanModify   bool `json:"canModify"`
	CanDelete   bool `json:"canDelete"`
	CanExport   bool `json:"canExport"`
	CanDownload bool `json:"canDownload"`
	CanView     bool `json:"canView"`
}

// Has reports whether the bit for c is set. CanView is always true.
func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapCreate:
		return c.CanCreate
	case CapModify:
		return c.CanModify
	case CapDelete:
		return c.CanDelete
	case CapExport:
		return c.CanExport
	case CapDownload:
		return c.CanDownload
	case CapView:
		return true
	}
	return false
}

// Normalized returns a copy with CanView forced on.
func (c Capabilities) Normalized() Capabilities {
	c.CanView = true
	return c
}

// AllCapabilities is the implicit set held by Owner and Admin tiers.
func AllCapabilities() Capabilities {
	return Capabilities{
		CanCreate:   true,
		CanModify:   true,
		CanDelete:   true,
		CanExport:   true,
		CanDownload: true,
		CanView:     true,
	}
}

// Principal is a credentialed actor.
type Principal struct {
	ID             string
	Name           string
	Email          string // lowercase, trimmed, globally unique
	SecretHash     string // bcrypt hash, never serialized
	Tier           Tier
	CreatedBy      string // owning admin for TierUser, empty otherwise
	Capabilities   Capabilities
	IsActive       bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// Summary projects the principal into the value carried by a verified session.
func (p *Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		Tier:         p.Tier,
		CreatedBy:    p.CreatedBy,
		Capabilities: p.Capabilities.Normalized(),
		IsActive:     p.IsActive,
		LastLoginAt:  p.LastLoginAt,
	}
}

// PrincipalSummary is the non-secret view of a principal.
type PrincipalSummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Tier         Tier         `json:"role"`
	CreatedBy    string       `json:"createdBy,omitempty"`
	Capabilities Capabilities `json:"permissions"`
	IsActive     bool         `json:"isActive"`
	LastLoginAt  *time.Time   `json:"lastLogin,omitempty"`
}

// NormalizeEmail lowercases and trims an identity handle.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FailedAttempt is the counter state returned by an atomic failure increment.
type FailedAttempt struct {
	Attempts    int
	LockedUntil *time.Time
}

// PrincipalRepository is the credential store.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, p *Principal) error
	Delete(ctx context.Context, id string) error
	ListByTier(ctx context.Context, tier Tier) ([]*Principal, error)
	ListByCreator(ctx context.Context, creatorID string) ([]*Principal, error)
	CountByTier(ctx context.Context, tier Tier) (int, error)

	// RecordFailedAttempt atomically increments the failure counter and sets
	// LockedUntil to lockUntil once the counter reaches threshold. An expired
	// lock is cleared and the counter restarts at 1.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (FailedAttempt, error)

	// RecordSuccessfulLogin atomically resets the counter, clears the lock and
	// stamps the last login time.
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error

	// ResetSecret replaces the secret hash and clears lockout state.
	ResetSecret(ctx context.Context, id, secretHash string) error
}

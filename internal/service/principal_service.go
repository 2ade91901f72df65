package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/ids"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
	"github.com/MdWarishh/visa-management-backend/internal/security/auth"
)

const (
	minUserSecretLength  = 6
	minAdminSecretLength = 8
)

// PrincipalDirectory manages owner, admin and sub-user accounts.
type PrincipalDirectory struct {
	principals domain.PrincipalRepository
	hasher     *auth.Hasher
	audit      *audit.Logger
	logger     *slog.Logger
}

func NewPrincipalDirectory(principals domain.PrincipalRepository, hasher *auth.Hasher, auditLogger *audit.Logger, logger *slog.Logger) *PrincipalDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLogger == nil {
		auditLogger = audit.NewLogger(logger)
	}
	return &PrincipalDirectory{principals: principals, hasher: hasher, audit: auditLogger, logger: logger}
}

// PrincipalInput carries the fields of a new account.
type PrincipalInput struct {
	Name         string
	Email        string
	Secret       string
	Capabilities domain.Capabilities
}

// PrincipalPatch is a partial account update.
type PrincipalPatch struct {
	Name         *string
	Capabilities *domain.Capabilities
	IsActive     *bool
	Secret       *string
}

// SeedOwner creates the platform owner when none exists. It reports whether
// an account was created.
func (d *PrincipalDirectory) SeedOwner(ctx context.Context, email, secret string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || secret == "" {
		return false, nil
	}
	n, err := d.principals.CountByTier(ctx, domain.TierOwner)
	if err != nil {
		return false, fmt.Errorf("count owners: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	p, err := d.newPrincipal(PrincipalInput{Name: "Owner", Email: email, Secret: secret}, domain.TierOwner, "")
	if err != nil {
		return false, err
	}
	if err := d.principals.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	d.logger.Info("owner account seeded", slog.String("email", email))
	return true, nil
}

// CreateAdmin adds a tenant admin. Owner only.
func (d *PrincipalDirectory) CreateAdmin(ctx context.Context, caller domain.Caller, in PrincipalInput) (*domain.PrincipalSummary, error) {
	if caller.Principal.Tier != domain.TierOwner {
		return nil, fmt.Errorf("%w: only the owner manages admins", domain.ErrForbidden)
	}
	if err := validateAccount(in); err != nil {
		return nil, err
	}
	if err := checkSecret(domain.TierAdmin, in.Secret); err != nil {
		return nil, err
	}

	p, err := d.newPrincipal(in, domain.TierAdmin, "")
	if err != nil {
		return nil, err
	}
	if err := d.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	d.audit.LogPrincipal(ctx, caller.Actor(), "admin_created", p.ID, p.Email)
	s := p.Summary()
	return &s, nil
}

// CreateUser adds a restricted sub-user to the caller's tenant. An owner must
// target a tenant.
func (d *PrincipalDirectory) CreateUser(ctx context.Context, caller domain.Caller, in PrincipalInput) (*domain.PrincipalSummary, error) {
	tenantID, err := d.userTenant(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := validateAccount(in); err != nil {
		return nil, err
	}
	if err := checkSecret(domain.TierUser, in.Secret); err != nil {
		return nil, err
	}

	p, err := d.newPrincipal(in, domain.TierUser, tenantID)
	if err != nil {
		return nil, err
	}
	if err := d.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	d.audit.LogPrincipal(ctx, caller.Actor(), "user_created", p.ID, p.Email)
	s := p.Summary()
	return &s, nil
}

// List returns admins for the owner and the caller's sub-users for an admin.
func (d *PrincipalDirectory) List(ctx context.Context, caller domain.Caller) ([]domain.PrincipalSummary, error) {
	var (
		ps  []*domain.Principal
		err error
	)
	switch caller.Principal.Tier {
	case domain.TierOwner:
		if caller.Scope.Kind == domain.ScopeTenant {
			ps, err = d.principals.ListByCreator(ctx, caller.Scope.TenantID)
		} else {
			ps, err = d.principals.ListByTier(ctx, domain.TierAdmin)
		}
	case domain.TierAdmin:
		ps, err = d.principals.ListByCreator(ctx, caller.Principal.ID)
	default:
		return nil, fmt.Errorf("%w: account management is restricted", domain.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.PrincipalSummary, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Summary())
	}
	return out, nil
}

// Get returns one account inside the caller's tree.
func (d *PrincipalDirectory) Get(ctx context.Context, caller domain.Caller, id string) (*domain.PrincipalSummary, error) {
	p, err := d.manageable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	s := p.Summary()
	return &s, nil
}

// IsTenant reports whether id names a tenant admin account.
func (d *PrincipalDirectory) IsTenant(ctx context.Context, id string) (bool, error) {
	p, err := d.principals.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Tier == domain.TierAdmin, nil
}

// Update applies a partial patch to an account inside the caller's tree.
func (d *PrincipalDirectory) Update(ctx context.Context, caller domain.Caller, id string, patch PrincipalPatch) (*domain.PrincipalSummary, error) {
	p, err := d.manageable(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, domain.NewValidationError("name cannot be empty")
		}
		p.Name = name
	}
	if patch.Capabilities != nil && p.Tier == domain.TierUser {
		p.Capabilities = patch.Capabilities.Normalized()
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}

	if patch.Secret != nil {
		if err := d.resetSecret(ctx, p, *patch.Secret); err != nil {
			return nil, err
		}
	}
	if err := d.principals.Update(ctx, p); err != nil {
		return nil, err
	}

	d.audit.LogPrincipal(ctx, caller.Actor(), "principal_updated", p.ID, "")
	s := p.Summary()
	return &s, nil
}

// ResetSecret replaces an account's secret and clears its lockout.
func (d *PrincipalDirectory) ResetSecret(ctx context.Context, caller domain.Caller, id, secret string) error {
	p, err := d.manageable(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := d.resetSecret(ctx, p, secret); err != nil {
		return err
	}
	d.audit.LogPrincipal(ctx, caller.Actor(), "secret_reset", p.ID, "")
	return nil
}

// SetActive enables or disables an account.
func (d *PrincipalDirectory) SetActive(ctx context.Context, caller domain.Caller, id string, active bool) (*domain.PrincipalSummary, error) {
	return d.Update(ctx, caller, id, PrincipalPatch{IsActive: &active})
}

// Delete removes an account. Deleting an admin also removes its sub-users;
// its candidate records are kept.
func (d *PrincipalDirectory) Delete(ctx context.Context, caller domain.Caller, id string) error {
	p, err := d.manageable(ctx, caller, id)
	if err != nil {
		return err
	}
	if p.Tier == domain.TierAdmin {
		users, err := d.principals.ListByCreator(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, u := range users {
			if err := d.principals.Delete(ctx, u.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
	}
	if err := d.principals.Delete(ctx, p.ID); err != nil {
		return err
	}
	d.audit.LogPrincipal(ctx, caller.Actor(), "principal_deleted", p.ID, p.Email)
	return nil
}

func (d *PrincipalDirectory) resetSecret(ctx context.Context, p *domain.Principal, secret string) error {
	if err := checkSecret(p.Tier, secret); err != nil {
		return err
	}
	hash, err := d.hasher.Hash(secret)
	if err != nil {
		return err
	}
	return d.principals.ResetSecret(ctx, p.ID, hash)
}

// manageable loads id when it sits inside the caller's tree. Anything else is
// NotFound.
func (d *PrincipalDirectory) manageable(ctx context.Context, caller domain.Caller, id string) (*domain.Principal, error) {
	if caller.Principal.Tier != domain.TierOwner && caller.Principal.Tier != domain.TierAdmin {
		return nil, fmt.Errorf("%w: account management is restricted", domain.ErrForbidden)
	}
	p, err := d.principals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch caller.Principal.Tier {
	case domain.TierOwner:
		if p.Tier == domain.TierAdmin || p.Tier == domain.TierUser {
			return p, nil
		}
	case domain.TierAdmin:
		if p.Tier == domain.TierUser && p.CreatedBy == caller.Principal.ID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (d *PrincipalDirectory) userTenant(ctx context.Context, caller domain.Caller) (string, error) {
	switch caller.Principal.Tier {
	case domain.TierAdmin:
		return caller.Principal.ID, nil
	case domain.TierOwner:
		if caller.Scope.Kind != domain.ScopeTenant {
			return "", domain.NewValidationError("a target tenant is required to create users")
		}
		admin, err := d.principals.GetByID(ctx, caller.Scope.TenantID)
		if err != nil {
			return "", err
		}
		if admin.Tier != domain.TierAdmin {
			return "", domain.ErrNotFound
		}
		return admin.ID, nil
	}
	return "", fmt.Errorf("%w: account management is restricted", domain.ErrForbidden)
}

func (d *PrincipalDirectory) newPrincipal(in PrincipalInput, tier domain.Tier, createdBy string) (*domain.Principal, error) {
	hash, err := d.hasher.Hash(in.Secret)
	if err != nil {
		d.logger.Error("failed to hash secret", slog.String("error", err.Error()))
		return nil, err
	}
	caps := domain.AllCapabilities()
	if tier == domain.TierUser {
		caps = in.Capabilities.Normalized()
	}
	return &domain.Principal{
		ID:           ids.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        domain.NormalizeEmail(in.Email),
		SecretHash:   hash,
		Tier:         tier,
		CreatedBy:    createdBy,
		Capabilities: caps,
		IsActive:     true,
	}, nil
}

func validateAccount(in PrincipalInput) error {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		missing = append(missing, "email")
	}
	if in.Secret == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return domain.NewValidationError("required: " + strings.Join(missing, ", "))
	}
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		return domain.NewValidationError("email is not valid")
	}
	return nil
}

// checkSecret enforces the per-tier secret policy. Admin and owner secrets
// need 8+ characters with upper, lower, digit and symbol.
func checkSecret(tier domain.Tier, secret string) error {
	if tier == domain.TierUser {
		if len(secret) < minUserSecretLength {
			return domain.NewValidationError(fmt.Sprintf("password must be at least %d characters", minUserSecretLength))
		}
		return nil
	}
	var upper, lower, digit, special bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if len(secret) < minAdminSecretLength || !upper || !lower || !digit || !special {
		return domain.NewValidationError("password must be at least 8 characters with uppercase, lowercase, number and special character")
	}
	return nil
}

package security

import (
	"fmt"
	"log/slog"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// TenancyResolver computes ownership scope and capabilities for principals.
type TenancyResolver struct {
	logger *slog.Logger
}

// NewTenancyResolver creates a new tenancy resolver
func NewTenancyResolver(logger *slog.Logger) *TenancyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenancyResolver{
		logger: logger,
	}
}

// ResolveScope returns the tenants p may see. target narrows an Owner to a
// single tenant and is ignored for other tiers.
func (r *TenancyResolver) ResolveScope(p domain.PrincipalSummary, target string) domain.Scope {
	switch p.Tier {
	case domain.TierOwner:
		if target != "" {
			return domain.Scope{Kind: domain.ScopeTenant, TenantID: target}
		}
		return domain.Scope{Kind: domain.ScopeAll}
	case domain.TierAdmin:
		return domain.Scope{Kind: domain.ScopeTenant, TenantID: p.ID}
	case domain.TierUser:
		if p.CreatedBy == "" {
			return domain.Scope{Kind: domain.ScopeNone}
		}
		return domain.Scope{Kind: domain.ScopeTenant, TenantID: p.CreatedBy}
	}
	return domain.Scope{Kind: domain.ScopeNone}
}

// Resolve builds the caller value threaded through ledger operations.
func (r *TenancyResolver) Resolve(p domain.PrincipalSummary, target string) domain.Caller {
	return domain.Caller{Principal: p, Scope: r.ResolveScope(p, target)}
}

// Authorize reports whether p holds capability.
func (r *TenancyResolver) Authorize(p domain.PrincipalSummary, capability domain.Capability) bool {
	return Authorize(p, capability)
}

// Require returns ErrForbidden when caller lacks capability.
func (r *TenancyResolver) Require(caller domain.Caller, capability domain.Capability) error {
	if Authorize(caller.Principal, capability) {
		return nil
	}
	r.logger.Warn("permission denied",
		slog.String("principal_id", caller.Principal.ID),
		slog.String("role", string(caller.Principal.Tier)),
		slog.String("capability", string(capability)),
	)
	return fmt.Errorf("%w: missing %s permission", domain.ErrForbidden, capability)
}

// Authorize is the capability check. Owner and Admin hold every capability;
// restricted users hold their stored bits, with view always granted.
func Authorize(p domain.PrincipalSummary, capability domain.Capability) bool {
	switch p.Tier {
	case domain.TierOwner, domain.TierAdmin:
		return true
	case domain.TierUser:
		return p.Capabilities.Has(capability)
	}
	return false
}

// EffectiveFilter intersects base with scope. The second result is false when
// the intersection is empty and no record can match.
func EffectiveFilter(scope domain.Scope, base domain.CandidateFilter) (domain.CandidateFilter, bool) {
	switch scope.Kind {
	case domain.ScopeAll:
		return base, true
	case domain.ScopeTenant:
		if base.TenantID != "" && base.TenantID != scope.TenantID {
			return base, false
		}
		base.TenantID = scope.TenantID
		return base, true
	}
	return base, false
}

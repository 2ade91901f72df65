package security

import (
	"testing"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

func TestResolveScope(t *testing.T) {
	r := NewTenancyResolver(nil)

	owner := domain.PrincipalSummary{ID: "o1", Tier: domain.TierOwner}
	if s := r.ResolveScope(owner, ""); s.Kind != domain.ScopeAll {
		t.Fatalf("owner without target should see all tenants, got %+v", s)
	}
	if s := r.ResolveScope(owner, "a9"); s.Kind != domain.ScopeTenant || s.TenantID != "a9" {
		t.Fatalf("owner with target should be narrowed, got %+v", s)
	}

	admin := domain.PrincipalSummary{ID: "a1", Tier: domain.TierAdmin}
	if s := r.ResolveScope(admin, "a2"); s.Kind != domain.ScopeTenant || s.TenantID != "a1" {
		t.Fatalf("admin scope must be its own id, got %+v", s)
	}

	user := domain.PrincipalSummary{ID: "u1", Tier: domain.TierUser, CreatedBy: "a1"}
	if s := r.ResolveScope(user, ""); s.Kind != domain.ScopeTenant || s.TenantID != "a1" {
		t.Fatalf("user scope must be its creator, got %+v", s)
	}

	orphan := domain.PrincipalSummary{ID: "u2", Tier: domain.TierUser}
	if s := r.ResolveScope(orphan, ""); s.Kind != domain.ScopeNone {
		t.Fatalf("user without creator must have no scope, got %+v", s)
	}
}

func TestAuthorize(t *testing.T) {
	all := []domain.Capability{
		domain.CapCreate, domain.CapModify, domain.CapDelete,
		domain.CapExport, domain.CapDownload, domain.CapView,
	}

	for _, tier := range []domain.Tier{domain.TierOwner, domain.TierAdmin} {
		p := domain.PrincipalSummary{Tier: tier}
		for _, c := range all {
			if !Authorize(p, c) {
				t.Fatalf("%s should hold %s", tier, c)
			}
		}
	}

	viewer := domain.PrincipalSummary{Tier: domain.TierUser, Capabilities: domain.Capabilities{}}
	if !Authorize(viewer, domain.CapView) {
		t.Fatalf("view must always be granted")
	}
	for _, c := range all[:5] {
		if Authorize(viewer, c) {
			t.Fatalf("view-only user must not hold %s", c)
		}
	}

	editor := domain.PrincipalSummary{Tier: domain.TierUser, Capabilities: domain.Capabilities{CanModify: true}}
	if !Authorize(editor, domain.CapModify) || Authorize(editor, domain.CapDelete) {
		t.Fatalf("user capabilities must follow stored bits")
	}
}

func TestEffectiveFilter(t *testing.T) {
	base := domain.CandidateFilter{Search: "smith"}

	f, ok := EffectiveFilter(domain.Scope{Kind: domain.ScopeAll}, base)
	if !ok || f.TenantID != "" || f.Search != "smith" {
		t.Fatalf("unrestricted scope should pass base through, got %+v ok=%v", f, ok)
	}

	f, ok = EffectiveFilter(domain.Scope{Kind: domain.ScopeTenant, TenantID: "a1"}, base)
	if !ok || f.TenantID != "a1" {
		t.Fatalf("tenant scope should pin tenant, got %+v ok=%v", f, ok)
	}

	if _, ok := EffectiveFilter(domain.Scope{Kind: domain.ScopeTenant, TenantID: "a1"}, domain.CandidateFilter{TenantID: "a2"}); ok {
		t.Fatalf("disjoint tenant must produce an empty intersection")
	}

	if _, ok := EffectiveFilter(domain.Scope{Kind: domain.ScopeNone}, base); ok {
		t.Fatalf("empty scope must match nothing")
	}
}

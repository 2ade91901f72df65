package service

import (
	"context"
	"errors"
	"testing"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/repository"
	"github.com/MdWarishh/visa-management-backend/internal/security"
)

type directoryFixture struct {
	dir      *PrincipalDirectory
	repo     *repository.MemoryPrincipalRepository
	resolver *security.TenancyResolver
	owner    domain.Caller
}

func newDirectoryFixture(t *testing.T) *directoryFixture {
	t.Helper()
	repo := repository.NewMemoryPrincipalRepository()
	dir := NewPrincipalDirectory(repo, testHasher, nil, nil)
	created, err := dir.SeedOwner(context.Background(), "Owner@X.com", "Owner#2026")
	if err != nil || !created {
		t.Fatalf("seed owner: %v, %v", created, err)
	}
	owner, err := repo.GetByEmail(context.Background(), "owner@x.com")
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	resolver := security.NewTenancyResolver(nil)
	return &directoryFixture{dir: dir, repo: repo, resolver: resolver, owner: resolver.Resolve(owner.Summary(), "")}
}

func (f *directoryFixture) callerFor(s *domain.PrincipalSummary) domain.Caller {
	return f.resolver.Resolve(*s, "")
}

func TestSeedOwnerIsIdempotent(t *testing.T) {
	f := newDirectoryFixture(t)
	created, err := f.dir.SeedOwner(context.Background(), "other@x.com", "Owner#2026")
	if err != nil || created {
		t.Fatalf("expected second seed to be a no-op, got %v, %v", created, err)
	}
	n, _ := f.repo.CountByTier(context.Background(), domain.TierOwner)
	if n != 1 {
		t.Fatalf("expected exactly one owner, got %d", n)
	}
}

func TestCreateAdminPolicy(t *testing.T) {
	ctx := context.Background()
	f := newDirectoryFixture(t)

	if _, err := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: "a@x.com", Secret: "weakpass"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected weak secret rejected, got %v", err)
	}
	admin, err := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: " A@X.com ", Secret: "Strong#123"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if admin.Email != "a@x.com" || admin.Tier != domain.TierAdmin || !admin.Capabilities.CanDelete {
		t.Fatalf("unexpected admin %+v", admin)
	}

	_, err = f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A2", Email: "a@x.com", Secret: "Strong#123"})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	if _, err := f.dir.CreateAdmin(ctx, f.callerFor(admin), PrincipalInput{Name: "B", Email: "b@x.com", Secret: "Strong#123"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected admin unable to create admins, got %v", err)
	}
}

func TestCreateUserForcesViewCapability(t *testing.T) {
	ctx := context.Background()
	f := newDirectoryFixture(t)
	admin, _ := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: "a@x.com", Secret: "Strong#123"})
	adminCaller := f.callerFor(admin)

	if _, err := f.dir.CreateUser(ctx, adminCaller, PrincipalInput{Name: "U", Email: "u@x.com", Secret: "12345"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected short secret rejected, got %v", err)
	}
	u, err := f.dir.CreateUser(ctx, adminCaller, PrincipalInput{
		Name: "U", Email: "u@x.com", Secret: "123456",
		Capabilities: domain.Capabilities{CanCreate: true},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.CreatedBy != admin.ID || !u.Capabilities.CanView || !u.Capabilities.CanCreate || u.Capabilities.CanDelete {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := f.dir.CreateUser(ctx, f.owner, PrincipalInput{Name: "V", Email: "v@x.com", Secret: "123456"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected owner without target rejected, got %v", err)
	}
	targeted := f.resolver.Resolve(f.owner.Principal, admin.ID)
	v, err := f.dir.CreateUser(ctx, targeted, PrincipalInput{Name: "V", Email: "v@x.com", Secret: "123456"})
	if err != nil || v.CreatedBy != admin.ID {
		t.Fatalf("expected owner to create in target tenant, got %+v, %v", v, err)
	}

	if _, err := f.dir.CreateUser(ctx, f.callerFor(u), PrincipalInput{Name: "W", Email: "w@x.com", Secret: "123456"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected user unable to create users, got %v", err)
	}
}

func TestAdminsManageOnlyTheirOwnUsers(t *testing.T) {
	ctx := context.Background()
	f := newDirectoryFixture(t)
	a, _ := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: "a@x.com", Secret: "Strong#123"})
	b, _ := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "B", Email: "b@x.com", Secret: "Strong#123"})
	u, _ := f.dir.CreateUser(ctx, f.callerFor(a), PrincipalInput{Name: "U", Email: "u@x.com", Secret: "123456"})

	other := f.callerFor(b)
	if _, err := f.dir.SetActive(ctx, other, u.ID, false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if err := f.dir.Delete(ctx, other, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if err := f.dir.Delete(ctx, f.callerFor(a), b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected admin unable to delete peer, got %v", err)
	}
	list, _ := f.dir.List(ctx, other)
	if len(list) != 0 {
		t.Fatalf("expected admin b to see no users, got %d", len(list))
	}
	list, _ = f.dir.List(ctx, f.callerFor(a))
	if len(list) != 1 || list[0].ID != u.ID {
		t.Fatalf("expected admin a to see its user, got %+v", list)
	}

	caps := domain.Capabilities{CanExport: true}
	updated, err := f.dir.Update(ctx, f.callerFor(a), u.ID, PrincipalPatch{Capabilities: &caps})
	if err != nil || !updated.Capabilities.CanExport || !updated.Capabilities.CanView {
		t.Fatalf("expected capability update, got %+v, %v", updated, err)
	}
}

func TestResetSecretClearsLockout(t *testing.T) {
	ctx := context.Background()
	f := newDirectoryFixture(t)
	a, _ := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: "a@x.com", Secret: "Strong#123"})
	clock := newClock()
	for i := 0; i < DefaultLockoutThreshold; i++ {
		_, _ = f.repo.RecordFailedAttempt(ctx, a.ID, DefaultLockoutThreshold, clock.Now(), clock.Now().Add(DefaultLockoutDuration))
	}

	if err := f.dir.ResetSecret(ctx, f.owner, a.ID, "Fresh#456"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	p, _ := f.repo.GetByID(ctx, a.ID)
	if p.FailedAttempts != 0 || p.LockedUntil != nil {
		t.Fatalf("expected lockout cleared, got %+v", p)
	}

	g := newGuard(f.repo, clock)
	if _, err := g.Authenticate(ctx, "a@x.com", "Fresh#456"); err != nil {
		t.Fatalf("expected login with reset secret, got %v", err)
	}
}

func TestDeleteAdminRemovesSubUsers(t *testing.T) {
	ctx := context.Background()
	f := newDirectoryFixture(t)
	a, _ := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "A", Email: "a@x.com", Secret: "Strong#123"})
	u, _ := f.dir.CreateUser(ctx, f.callerFor(a), PrincipalInput{Name: "U", Email: "u@x.com", Secret: "123456"})

	if err := f.dir.Delete(ctx, f.owner, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.repo.GetByID(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected sub-user removed, got %v", err)
	}
	if _, err := f.dir.Get(ctx, f.owner, f.owner.Principal.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected owner account to be unmanageable, got %v", err)
	}
}

func TestIsTenantOnlyForAdmins(t *testing.T) {
	f := newDirectoryFixture(t)
	ctx := context.Background()
	admin, err := f.dir.CreateAdmin(ctx, f.owner, PrincipalInput{Name: "T", Email: "tenant@x.com", Secret: "Strong#123"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	if ok, err := f.dir.IsTenant(ctx, admin.ID); err != nil || !ok {
		t.Fatalf("admin should be a tenant: %v %v", ok, err)
	}
	if ok, _ := f.dir.IsTenant(ctx, f.owner.Principal.ID); ok {
		t.Fatalf("owner is not a tenant")
	}
	if ok, err := f.dir.IsTenant(ctx, "missing"); err != nil || ok {
		t.Fatalf("unknown id should not be a tenant: %v %v", ok, err)
	}
}

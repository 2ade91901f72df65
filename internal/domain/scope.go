package domain

// ScopeKind classifies a tenant scope.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeTenant
	ScopeAll
)

// Scope is the set of tenants whose data a caller may see.
type Scope struct {
	Kind     ScopeKind
	TenantID string
}

// Contains reports whether tenantID falls inside the scope.
func (s Scope) Contains(tenantID string) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeTenant:
		return s.TenantID == tenantID
	}
	return false
}

// Caller is the authenticated principal together with its resolved scope.
// It is passed explicitly into every ledger operation.
type Caller struct {
	Principal PrincipalSummary
	Scope     Scope
}

// Actor is the identity recorded in audit trails.
func (c Caller) Actor() string {
	return c.Principal.Email
}

package domain

import (
	"context"
	"strings"
	"time"
)

// Status is a candidate lifecycle status.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusUnderReview Status = "Under Review"
	StatusApproved    Status = "Approved"
	StatusRejected    Status = "Rejected"
	StatusIssued      Status = "Issued"
)

// Statuses lists every status in order of increasing finality, Rejected last.
var Statuses = []Status{StatusPending, StatusUnderReview, StatusApproved, StatusIssued, StatusRejected}

// rank orders the non-rejected statuses. Rejected has no rank.
var rank = map[Status]int{
	StatusPending:     0,
	StatusUnderReview: 1,
	StatusApproved:    2,
	StatusIssued:      3,
}

// ParseStatus validates s against the fixed status set.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// CanTransition reports whether a record may move from one status to another.
// Statuses only move forward; Rejected is terminal and is reachable only from
// Pending or Under Review.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusRejected {
		return false
	}
	if to == StatusRejected {
		return from == StatusPending || from == StatusUnderReview
	}
	return rank[to] > rank[from]
}

// IdentityKind tags an identity proof.
type IdentityKind string

const (
	IdentityPassport IdentityKind = "passport"
	IdentityControl  IdentityKind = "control"
)

// IdentityProof is either a passport number or a control number, never both.
type IdentityProof struct {
	kind  IdentityKind
	value string
}

// Passport builds a passport identity proof.
func Passport(number string) IdentityProof {
	return IdentityProof{kind: IdentityPassport, value: NormalizeIdentifier(number)}
}

// Control builds a control-number identity proof.
func Control(number string) IdentityProof {
	return IdentityProof{kind: IdentityControl, value: NormalizeIdentifier(number)}
}

// NewIdentityProof builds a proof from its wire form.
func NewIdentityProof(kind, number string) (IdentityProof, bool) {
	switch IdentityKind(strings.ToLower(strings.TrimSpace(kind))) {
	case IdentityPassport, "":
		return Passport(number), true
	case IdentityControl:
		return Control(number), true
	}
	return IdentityProof{}, false
}

func (p IdentityProof) Kind() IdentityKind { return p.kind }
func (p IdentityProof) Value() string      { return p.value }
func (p IdentityProof) IsZero() bool       { return p.value == "" }

// PassportNumber returns the value when the proof is a passport.
func (p IdentityProof) PassportNumber() string {
	if p.kind == IdentityPassport {
		return p.value
	}
	return ""
}

// ControlNumber returns the value when the proof is a control number.
func (p IdentityProof) ControlNumber() string {
	if p.kind == IdentityControl {
		return p.value
	}
	return ""
}

// NormalizeIdentifier uppercases and trims a human-facing identifier.
func NormalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// StatusEntry is one append-only audit trail entry.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Actor     string    `json:"changedBy"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DownloadEntry records one public artifact fetch.
type DownloadEntry struct {
	At     time.Time `json:"downloadedAt"`
	Origin string    `json:"ip"`
}

// Candidate is one visa application owned by a tenant admin.
type Candidate struct {
	ID                string
	TenantID          string
	Identity          IdentityProof
	FullName          string
	DateOfBirth       time.Time
	Profession        string
	CompanyName       string
	ApplicationNumber string
	ApplicationDate   time.Time
	Country           string
	VisaType          string
	VisaNumber        string
	VisaIssueDate     *time.Time
	VisaExpiryDate    *time.Time
	Status            Status
	Remarks           string
	PhotoPath         string
	DocumentPath      string
	ArtifactPath      string
	History           []StatusEntry
	Downloads         []DownloadEntry
	IsDeleted         bool
	DeletedAt         *time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CandidateFilter is the effective query filter after scope intersection.
type CandidateFilter struct {
	TenantID string // empty means every tenant
	Deleted  bool
	Status   Status
	Search   string
}

// Page bounds a listing.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// PublicMatch is the criteria of an unauthenticated lookup.
type PublicMatch struct {
	ID         string // optional; narrows the match to one record
	Identifier string // application number or identity-proof number
	DOBFrom    time.Time
	DOBTo      time.Time // exclusive
}

// CandidateStats summarizes a scope.
type CandidateStats struct {
	Total     int            `json:"total"`
	ByStatus  map[Status]int `json:"byStatus"`
	Deleted   int            `json:"deleted"`
	ThisMonth int            `json:"thisMonth"`
}

// CandidateRepository is the candidate store. Implementations must enforce
// unique (tenant, application number) and (tenant, passport number) among
// non-deleted records, and global uniqueness of visa numbers.
type CandidateRepository interface {
	Insert(ctx context.Context, c *Candidate) error
	Get(ctx context.Context, filter CandidateFilter, id string) (*Candidate, error)
	GetByID(ctx context.Context, id string) (*Candidate, error)
	List(ctx context.Context, filter CandidateFilter, page Page) ([]*Candidate, int, error)

	// Update writes the mutable fields of c only while the stored record is
	// live and still in status expected; entry, when non-nil, is appended to
	// the audit trail in the same write. c.VisaNumber is stored only onto a
	// record that has none. A deleted or missing record yields ErrNotFound,
	// a changed status ErrStaleStatus.
	Update(ctx context.Context, c *Candidate, expected Status, entry *StatusEntry) error

	// SoftDelete flags a record inside filter. It returns ErrAlreadyDeleted
	// when the flag is already set and ErrNotFound when no record matches.
	SoftDelete(ctx context.Context, filter CandidateFilter, id string, at time.Time) error

	VisaNumberExists(ctx context.Context, number string) (bool, error)

	// AssignVisaNumber writes number onto a record that has none. A number
	// taken by another record yields a ConflictError on field visaNumber.
	AssignVisaNumber(ctx context.Context, id, number string, issuedAt time.Time) error

	SetArtifact(ctx context.Context, id, path string) error
	SetUpload(ctx context.Context, id string, kind UploadKind, path string) error
	FindPublic(ctx context.Context, match PublicMatch) (*Candidate, error)
	AppendDownload(ctx context.Context, id string, entry DownloadEntry) error
	Stats(ctx context.Context, filter CandidateFilter, monthStart time.Time) (*CandidateStats, error)
	ListMissingArtifacts(ctx context.Context, statuses []Status, limit int) ([]*Candidate, error)
}

// UploadKind names a stored upload slot on a candidate.
type UploadKind string

const (
	UploadPhoto    UploadKind = "photo"
	UploadDocument UploadKind = "document"
)

// RenderRequest asks the render worker to produce the artifact for a record.
type RenderRequest struct {
	CandidateID string    `json:"candidateId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// RenderQueue carries render requests from the ledger to the worker.
type RenderQueue interface {
	Publish(ctx context.Context, req RenderRequest) error
	Consume(ctx context.Context) (RenderRequest, error)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/infrastructure/storage"
	"github.com/MdWarishh/visa-management-backend/internal/repository"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/auth"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
	"github.com/MdWarishh/visa-management-backend/internal/service"
	"github.com/MdWarishh/visa-management-backend/internal/worker"
)

const (
	ownerEmail  = "owner@visa.test"
	ownerSecret = "Owner#2026"
	adminSecret = "Admin#2026"
)

type testServer struct {
	*httptest.Server
	ledger *service.CandidateLedger
	queue  *worker.ChannelQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	principals := repository.NewMemoryPrincipalRepository()
	candidates := repository.NewMemoryCandidateRepository()
	hasher := auth.NewHasher(4)
	resolver := security.NewTenancyResolver(log)
	queue := worker.NewChannelQueue(16)

	directory := service.NewPrincipalDirectory(principals, hasher, nil, log)
	if _, err := directory.SeedOwner(context.Background(), ownerEmail, ownerSecret); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	guard := service.NewAccountGuard(principals, hasher, auth.NewTokenManager("test-secret", "visa-test"), log)
	allocator := service.NewIdentifierAllocator(candidates, service.AllocatorConfig{}, log)
	ledger := service.NewCandidateLedger(candidates, allocator, queue, resolver, nil, service.LedgerConfig{}, log)
	uploads, err := storage.NewLocalStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	public := ratelimit.NewLimiter(600, 100)
	login := ratelimit.NewLimiter(600, 100)
	t.Cleanup(public.Stop)
	t.Cleanup(login.Stop)

	srv := httptest.NewServer(NewRouter(Deps{
		Guard:         guard,
		Directory:     directory,
		Ledger:        ledger,
		Resolver:      resolver,
		Uploads:       uploads,
		Health:        map[string]Checker{"memory": func(context.Context) error { return nil }},
		PublicLimiter: public,
		LoginLimiter:  login,
		Logger:        log,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, ledger: ledger, queue: queue}
}

type envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Field        string          `json:"field"`
	AttemptsLeft *int            `json:"attemptsLeft"`
	Data         json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	var env envelope
	_ = json.NewDecoder(res.Body).Decode(&env)
	return res.StatusCode, env
}

func (s *testServer) login(t *testing.T, email, secret string) string {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: email, Password: secret})
	if code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, code, env.Message)
	}
	var session service.Session
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("session: %v", err)
	}
	return session.Token
}

func (s *testServer) createAdmin(t *testing.T, ownerToken, email string) (string, string) {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/accounts/admins", ownerToken, AccountRequest{Name: "Agency", Email: email, Password: adminSecret})
	if code != http.StatusCreated {
		t.Fatalf("create admin: %d %s", code, env.Message)
	}
	var admin domain.PrincipalSummary
	_ = json.Unmarshal(env.Data, &admin)
	return admin.ID, s.login(t, email, adminSecret)
}

func candidateBody(app, passport string) CandidateRequest {
	return CandidateRequest{
		PassportNumber:    passport,
		FullName:          "Asha Verma",
		DateOfBirth:       "1990-05-17",
		ApplicationNumber: app,
		ApplicationDate:   "2026-02-01",
		Country:           "UAE",
		VisaType:          "Employment",
	}
}

func TestCandidateLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, ownerEmail, ownerSecret)
	_, admin := s.createAdmin(t, owner, "agency@visa.test")

	code, env := s.do(t, http.MethodPost, "/api/candidates", admin, candidateBody("app-1", "p100"))
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, env.Message)
	}
	var created CandidateResponse
	_ = json.Unmarshal(env.Data, &created)
	if created.ApplicationNumber != "APP-1" || created.Status != domain.StatusPending {
		t.Fatalf("unexpected record %+v", created)
	}

	code, env = s.do(t, http.MethodPost, "/api/candidates", admin, candidateBody("APP-1", "P200"))
	if code != http.StatusConflict || env.Field != "applicationNumber" {
		t.Fatalf("expected application number conflict, got %d %q", code, env.Field)
	}

	for _, status := range []string{"Under Review", "Approved", "Issued"} {
		code, env = s.do(t, http.MethodPatch, "/api/candidates/"+created.ID, admin, map[string]string{"status": status})
		if code != http.StatusOK {
			t.Fatalf("move to %s: %d %s", status, code, env.Message)
		}
	}
	var issued CandidateResponse
	_ = json.Unmarshal(env.Data, &issued)
	if !strings.HasPrefix(issued.VisaNumber, "VN") || issued.VisaIssueDate == "" || len(issued.History) != 4 {
		t.Fatalf("expected allocated visa number, got %+v", issued)
	}
	if s.queue.Len() != 1 {
		t.Fatalf("expected one render request, got %d", s.queue.Len())
	}

	code, _ = s.do(t, http.MethodPatch, "/api/candidates/"+created.ID, admin, map[string]string{"status": "Pending"})
	if code != http.StatusBadRequest {
		t.Fatalf("backward transition should be rejected, got %d", code)
	}

	// owner sees every tenant, a second admin sees nothing of the first
	code, env = s.do(t, http.MethodGet, "/api/candidates", owner, nil)
	var page ListResponse
	_ = json.Unmarshal(env.Data, &page)
	if code != http.StatusOK || page.Total != 1 {
		t.Fatalf("owner list: %d total=%d", code, page.Total)
	}
	_, other := s.createAdmin(t, owner, "other@visa.test")
	code, _ = s.do(t, http.MethodGet, "/api/candidates/"+created.ID, other, nil)
	if code != http.StatusNotFound {
		t.Fatalf("cross-tenant read should be not found, got %d", code)
	}

	code, _ = s.do(t, http.MethodDelete, "/api/candidates/"+created.ID, admin, nil)
	if code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	code, _ = s.do(t, http.MethodDelete, "/api/candidates/"+created.ID, admin, nil)
	if code != http.StatusNotFound && code != http.StatusConflict {
		t.Fatalf("second delete should fail, got %d", code)
	}
}

func TestOwnerCreatesIntoTargetTenant(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, ownerEmail, ownerSecret)
	tenantID, admin := s.createAdmin(t, owner, "agency@visa.test")

	code, _ := s.do(t, http.MethodPost, "/api/candidates", owner, candidateBody("APP-9", "P900"))
	if code != http.StatusBadRequest {
		t.Fatalf("owner without target tenant should be rejected, got %d", code)
	}
	code, env := s.do(t, http.MethodPost, "/api/candidates", owner, candidateBody("APP-9", "P900"), "X-Tenant-ID", tenantID)
	if code != http.StatusCreated {
		t.Fatalf("owner create with target: %d %s", code, env.Message)
	}
	code, env = s.do(t, http.MethodGet, "/api/candidates", admin, nil)
	var page ListResponse
	_ = json.Unmarshal(env.Data, &page)
	if code != http.StatusOK || page.Total != 1 {
		t.Fatalf("admin should see the owner's record, got %d total=%d", code, page.Total)
	}
}

func TestLoginFailuresAndLockout(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "nobody@visa.test", Password: "x"})
	if code != http.StatusUnauthorized || env.Message != "Invalid email or password" {
		t.Fatalf("unknown account: %d %q", code, env.Message)
	}

	for i := 1; i <= 4; i++ {
		code, env = s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: ownerEmail, Password: "wrong"})
		if code != http.StatusUnauthorized || env.AttemptsLeft == nil || *env.AttemptsLeft != 5-i {
			t.Fatalf("attempt %d: %d %+v", i, code, env)
		}
	}
	code, _ = s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: ownerEmail, Password: "wrong"})
	if code != http.StatusTooManyRequests {
		t.Fatalf("fifth failure should lock, got %d", code)
	}
	code, _ = s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: ownerEmail, Password: ownerSecret})
	if code != http.StatusTooManyRequests {
		t.Fatalf("locked account should stay locked, got %d", code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/candidates", "/api/auth/me", "/api/accounts"} {
		code, _ := s.do(t, http.MethodGet, path, "", nil)
		if code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, code)
		}
	}
	code, _ := s.do(t, http.MethodGet, "/api/candidates", "not-a-token", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", code)
	}
}

func TestViewOnlyUserCannotCreate(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, ownerEmail, ownerSecret)
	_, admin := s.createAdmin(t, owner, "agency@visa.test")

	code, env := s.do(t, http.MethodPost, "/api/accounts/users", admin, AccountRequest{Name: "Clerk", Email: "clerk@visa.test", Password: "clerk1"})
	if code != http.StatusCreated {
		t.Fatalf("create user: %d %s", code, env.Message)
	}
	clerk := s.login(t, "clerk@visa.test", "clerk1")

	code, _ = s.do(t, http.MethodPost, "/api/candidates", clerk, candidateBody("APP-2", "P2"))
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	code, _ = s.do(t, http.MethodGet, "/api/candidates", clerk, nil)
	if code != http.StatusOK {
		t.Fatalf("view should be allowed, got %d", code)
	}
	code, _ = s.do(t, http.MethodGet, "/api/accounts", clerk, nil)
	if code != http.StatusForbidden {
		t.Fatalf("sub-users cannot manage accounts, got %d", code)
	}

	code, env = s.do(t, http.MethodGet, "/api/auth/me", clerk, nil)
	var me domain.PrincipalSummary
	_ = json.Unmarshal(env.Data, &me)
	if code != http.StatusOK || me.Tier != domain.TierUser || !me.Capabilities.CanView {
		t.Fatalf("me: %d %+v", code, me)
	}
	code, _ = s.do(t, http.MethodPost, "/api/auth/logout", clerk, nil)
	if code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
}

func TestPublicTrackAndDownload(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, ownerEmail, ownerSecret)
	_, admin := s.createAdmin(t, owner, "agency@visa.test")

	_, env := s.do(t, http.MethodPost, "/api/candidates", admin, candidateBody("APP-5", "P500"))
	var created CandidateResponse
	_ = json.Unmarshal(env.Data, &created)
	for _, status := range []string{"Approved", "Issued"} {
		if code, env := s.do(t, http.MethodPatch, "/api/candidates/"+created.ID, admin, map[string]string{"status": status}); code != http.StatusOK {
			t.Fatalf("move to %s: %d %s", status, code, env.Message)
		}
	}
	artifact := filepath.Join(t.TempDir(), created.ID+".pdf")
	if err := os.WriteFile(artifact, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := s.ledger.AttachArtifact(context.Background(), created.ID, artifact); err != nil {
		t.Fatalf("attach: %v", err)
	}

	wrongDOB := TrackRequest{ApplicationNumber: "APP-5", DateOfBirth: "1991-05-17"}
	unknown := TrackRequest{ApplicationNumber: "APP-404", DateOfBirth: "1990-05-17"}
	for _, req := range []TrackRequest{wrongDOB, unknown} {
		code, env := s.do(t, http.MethodPost, "/api/public/track", "", req)
		if code != http.StatusNotFound || env.Message != domain.PublicNotFoundMessage {
			t.Fatalf("expected generic not found, got %d %q", code, env.Message)
		}
	}

	code, env := s.do(t, http.MethodPost, "/api/public/track", "", TrackRequest{PassportNumber: "p500", DateOfBirth: "1990-05-17"})
	if code != http.StatusOK {
		t.Fatalf("track: %d %s", code, env.Message)
	}
	var view service.PublicView
	_ = json.Unmarshal(env.Data, &view)
	if !view.CanDownload || view.CandidateID != created.ID {
		t.Fatalf("unexpected public view %+v", view)
	}

	res, err := http.Get(s.URL + "/api/public/download/" + created.ID + "?identifier=APP-5&dateOfBirth=1990-05-17")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("download: %d %q", res.StatusCode, body)
	}
	if !strings.Contains(res.Header.Get("Content-Disposition"), "Visa-APP-5.pdf") {
		t.Fatalf("unexpected disposition %q", res.Header.Get("Content-Disposition"))
	}

	res, err = http.Get(s.URL + "/api/public/download/" + created.ID + "?identifier=APP-5&dateOfBirth=2000-01-01")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("mismatched download should be not found, got %d", res.StatusCode)
	}
}

func TestUploadStoresFile(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, ownerEmail, ownerSecret)
	_, admin := s.createAdmin(t, owner, "agency@visa.test")
	_, env := s.do(t, http.MethodPost, "/api/candidates", admin, candidateBody("APP-7", "P700"))
	var created CandidateResponse
	_ = json.Unmarshal(env.Data, &created)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "passport.pdf")
	part.Write([]byte("%PDF-1.4 scanned"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/api/candidates/"+created.ID+"/uploads/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d", res.StatusCode)
	}

	code, env := s.do(t, http.MethodGet, "/api/candidates/"+created.ID, admin, nil)
	var got CandidateResponse
	_ = json.Unmarshal(env.Data, &got)
	if code != http.StatusOK || !got.HasDocument {
		t.Fatalf("document not attached: %d %+v", code, got)
	}
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t)
	res, err := http.Get(s.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	defer res.Body.Close()
	var body ReadinessResponse
	_ = json.NewDecoder(res.Body).Decode(&body)
	if res.StatusCode != http.StatusOK || body.Checks["memory"] != "ok" {
		t.Fatalf("unexpected readiness %d %+v", res.StatusCode, body)
	}
}

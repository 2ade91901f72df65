package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/reliability/retry"
	"github.com/MdWarishh/visa-management-backend/internal/repository"
)

type fakeRenderer struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, c *domain.Candidate) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fails {
		return "", errors.New("disk full")
	}
	return "/artifacts/" + c.ID + ".pdf", nil
}

type repoAttacher struct{ repo domain.CandidateRepository }

func (a repoAttacher) AttachArtifact(ctx context.Context, id, path string) error {
	return a.repo.SetArtifact(ctx, id, path)
}

func issuedOnly(s domain.Status) bool { return s == domain.StatusIssued }

func seed(t *testing.T, repo domain.CandidateRepository, id string, status domain.Status) {
	t.Helper()
	c := &domain.Candidate{
		ID:                id,
		TenantID:          "t1",
		Identity:          domain.Passport("P" + id),
		FullName:          "Name " + id,
		DateOfBirth:       time.Date(1991, 3, 4, 0, 0, 0, 0, time.UTC),
		ApplicationNumber: "APP" + id,
		ApplicationDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Country:           "Qatar",
		VisaType:          "Work",
		Status:            status,
	}
	if err := repo.Insert(context.Background(), c); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func newWorker(repo domain.CandidateRepository, queue domain.RenderQueue, r Renderer) *RenderWorker {
	return NewRenderWorker(queue, repo, r, repoAttacher{repo}, issuedOnly, nil).
		WithRetry(&retry.Config{MaxAttempts: 3})
}

func TestHandleAttachesArtifactAfterRetries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCandidateRepository()
	seed(t, repo, "1", domain.StatusIssued)
	r := &fakeRenderer{fails: 2}
	w := newWorker(repo, NewChannelQueue(1), r)

	if err := w.Handle(ctx, domain.RenderRequest{CandidateID: "1"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	c, _ := repo.GetByID(ctx, "1")
	if c.ArtifactPath != "/artifacts/1.pdf" || r.calls != 3 {
		t.Fatalf("expected artifact after 3 calls, got %q after %d", c.ArtifactPath, r.calls)
	}
}

func TestHandleReportsRenderingFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCandidateRepository()
	seed(t, repo, "1", domain.StatusIssued)
	w := newWorker(repo, NewChannelQueue(1), &fakeRenderer{fails: 10})

	err := w.Handle(ctx, domain.RenderRequest{CandidateID: "1"})
	if !errors.Is(err, domain.ErrRenderingFailed) {
		t.Fatalf("expected rendering failure, got %v", err)
	}
	c, _ := repo.GetByID(ctx, "1")
	if c.ArtifactPath != "" || c.Status != domain.StatusIssued {
		t.Fatalf("record should keep its status without artifact, got %+v", c)
	}
}

func TestHandleSkipsIneligibleRecords(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCandidateRepository()
	seed(t, repo, "1", domain.StatusPending)
	seed(t, repo, "2", domain.StatusIssued)
	_ = repo.SoftDelete(ctx, domain.CandidateFilter{}, "2", time.Now())
	r := &fakeRenderer{}
	w := newWorker(repo, NewChannelQueue(1), r)

	for _, id := range []string{"1", "2", "missing"} {
		if err := w.Handle(ctx, domain.RenderRequest{CandidateID: id}); err != nil {
			t.Fatalf("handle %s: %v", id, err)
		}
	}
	if r.calls != 0 {
		t.Fatalf("expected no renders, got %d", r.calls)
	}
}

func TestSweeperRequeuesMissingArtifacts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryCandidateRepository()
	seed(t, repo, "1", domain.StatusIssued)
	seed(t, repo, "2", domain.StatusIssued)
	seed(t, repo, "3", domain.StatusApproved)
	_ = repo.SetArtifact(ctx, "2", "/artifacts/2.pdf")
	queue := NewChannelQueue(10)

	s := NewArtifactSweeper(repo, queue, []domain.Status{domain.StatusIssued}, time.Minute, nil)
	if n := s.Sweep(ctx); n != 1 {
		t.Fatalf("expected one request, got %d", n)
	}
	req, _ := queue.Consume(ctx)
	if req.CandidateID != "1" {
		t.Fatalf("expected record 1, got %q", req.CandidateID)
	}
}

func TestStartDrainsQueueUntilCancelled(t *testing.T) {
	repo := repository.NewMemoryCandidateRepository()
	seed(t, repo, "1", domain.StatusIssued)
	queue := NewChannelQueue(4)
	w := newWorker(repo, queue, &fakeRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	if err := queue.Publish(ctx, domain.RenderRequest{CandidateID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, _ := repo.GetByID(context.Background(), "1")
		if c.ArtifactPath != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("artifact was not attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestChannelQueueFull(t *testing.T) {
	q := NewChannelQueue(1)
	ctx := context.Background()
	if err := q.Publish(ctx, domain.RenderRequest{CandidateID: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, domain.RenderRequest{CandidateID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected full queue, got %v", err)
	}
}

package pdf

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

func TestRenderWritesPDF(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRenderer(dir, "")
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	issued := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := &domain.Candidate{
		ID:                "01JABCDEF",
		Identity:          domain.Passport("p1234567"),
		FullName:          "José Ramírez",
		DateOfBirth:       time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		ApplicationNumber: "APP-1",
		VisaNumber:        "VN202612345678",
		VisaIssueDate:     &issued,
		Country:           "Qatar",
		VisaType:          "Work",
		Status:            domain.StatusIssued,
	}

	path, err := r.Render(context.Background(), c)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if path != filepath.Join(dir, "01JABCDEF.pdf") {
		t.Fatalf("unexpected path %q", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("artifact is not a pdf")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in dir, got %d entries", len(entries))
	}
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	r, err := NewRenderer(t.TempDir(), "Acme")
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, &domain.Candidate{ID: "x"}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestFormatDate(t *testing.T) {
	if got := formatDate(nil); got != "N/A" {
		t.Fatalf("got %q", got)
	}
	d := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := formatDate(&d); got != "02/01/2026" {
		t.Fatalf("got %q", got)
	}
}

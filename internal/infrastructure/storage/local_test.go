package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSaveStoresByKind(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, 1024)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path, err := s.Save(context.Background(), domain.UploadPhoto, bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(root, "photo") || filepath.Ext(path) != ".png" {
		t.Fatalf("unexpected path %q", path)
	}
	f, err := s.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Close()

	path, err = s.Save(context.Background(), domain.UploadDocument, strings.NewReader("%PDF-1.4\n%binary"))
	if err != nil || filepath.Ext(path) != ".pdf" {
		t.Fatalf("expected pdf upload, got %q, %v", path, err)
	}
}

func TestSaveRejectsBadUploads(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	cases := map[string]struct {
		kind domain.UploadKind
		body []byte
	}{
		"too large":    {domain.UploadPhoto, bytes.Repeat([]byte{0xff}, 17)},
		"empty":        {domain.UploadPhoto, nil},
		"wrong type":   {domain.UploadPhoto, []byte("<html></html>")},
		"unknown kind": {"passport", pngHeader},
	}
	for name, tc := range cases {
		if _, err := s.Save(ctx, tc.kind, bytes.NewReader(tc.body)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestOpenRejectsPathsOutsideRoot(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.Open("/etc/passwd"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

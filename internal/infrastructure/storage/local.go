// Package storage keeps uploaded candidate files on local disk.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// DefaultMaxBytes is the per-file upload limit.
const DefaultMaxBytes = 5 << 20

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// LocalStore writes uploads under root/<kind>/<uuid><ext>.
type LocalStore struct {
	root     string
	maxBytes int64
}

func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{root: root, maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured per-file limit.
func (s *LocalStore) MaxBytes() int64 { return s.maxBytes }

// Save stores one upload. Only JPEG, PNG and PDF content is accepted; the
// type is taken from the bytes, never from the client's file name.
func (s *LocalStore) Save(ctx context.Context, kind domain.UploadKind, r io.Reader) (string, error) {
	if kind != domain.UploadPhoto && kind != domain.UploadDocument {
		return "", domain.NewValidationError(fmt.Sprintf("unknown upload kind %q", kind))
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", domain.NewValidationError(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	if len(data) == 0 {
		return "", domain.NewValidationError("file is empty")
	}
	ext, ok := extensions[sniff(data)]
	if !ok {
		return "", domain.NewValidationError("invalid file type, only JPG, PNG and PDF are allowed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// Open returns a reader for a stored path. Paths outside root are rejected.
func (s *LocalStore) Open(path string) (*os.File, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, domain.ErrNotFound
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, domain.ErrNotFound
	}
	return f, err
}

func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	// DetectContentType reports PDFs only with the %PDF- signature.
	if ct == "application/octet-stream" && bytes.HasPrefix(data, []byte("%PDF-")) {
		return "application/pdf"
	}
	return ct
}

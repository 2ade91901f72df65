// Package pdf renders the visa artifact for issued records.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// DefaultCompanyName is printed in the artifact header when none is configured.
const DefaultCompanyName = "Visa Immigration Services"

// Renderer writes A4 visa artifacts into a directory.
type Renderer struct {
	dir     string
	company string
}

// NewRenderer creates dir if needed.
func NewRenderer(dir, company string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if company == "" {
		company = DefaultCompanyName
	}
	return &Renderer{dir: dir, company: company}, nil
}

// Render writes <dir>/<id>.pdf and returns its path. The file is written to a
// temporary name first so readers never see a partial artifact.
func (r *Renderer) Render(ctx context.Context, c *domain.Candidate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc := r.layout(c)
	if err := doc.Error(); err != nil {
		return "", fmt.Errorf("failed to lay out artifact: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, c.ID+"-*.pdf.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := doc.Output(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(r.dir, c.ID+".pdf")
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish artifact: %w", err)
	}
	return path, nil
}

func (r *Renderer) layout(c *domain.Candidate) *fpdf.Fpdf {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetTitle("Visa "+c.ApplicationNumber, true)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, tr(strings.ToUpper(r.company)), "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(0, 6, "ELECTRONIC VISA", "", 1, "C", false, 0, "")
	doc.Ln(6)

	rows := [][2]string{
		{"Applicant", strings.ToUpper(c.FullName)},
		{"Application number", c.ApplicationNumber},
		{"Visa number", c.VisaNumber},
		{"Passport number", c.Identity.PassportNumber()},
		{"Control number", c.Identity.ControlNumber()},
		{"Date of birth", formatDate(&c.DateOfBirth)},
		{"Profession", strings.ToUpper(c.Profession)},
		{"Employer", strings.ToUpper(c.CompanyName)},
		{"Visa type", strings.ToUpper(c.VisaType)},
		{"Country", strings.ToUpper(c.Country)},
		{"Issue date", formatDate(c.VisaIssueDate)},
		{"Expiry date", formatDate(c.VisaExpiryDate)},
		{"Status", strings.ToUpper(string(c.Status))},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(60, 8, row[0], "1", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(0, 8, tr(row[1]), "1", 1, "L", false, 0, "")
	}

	if c.Remarks != "" {
		doc.Ln(4)
		doc.SetFont("Helvetica", "I", 10)
		doc.MultiCell(0, 5, tr(c.Remarks), "", "L", false)
	}
	return doc
}

// formatDate prints DD/MM/YYYY, or N/A for a missing date.
func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format("02/01/2006")
}

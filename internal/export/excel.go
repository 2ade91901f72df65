// Package export writes candidate listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// SheetName is the worksheet holding the exported records.
const SheetName = "Candidates"

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{
	"Application No", "Full Name", "Passport No", "Control No", "Date of Birth",
	"Profession", "Company", "Visa Type", "Country", "Status", "Visa Number",
	"Issue Date", "Expiry Date", "Application Date", "Remarks", "Created At",
}

// WriteCandidates writes records as a single-sheet workbook to w.
func WriteCandidates(w io.Writer, records []*domain.Candidate) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(SheetName, "A", lastCol, 18); err != nil {
		return err
	}

	for i, c := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			c.ApplicationNumber,
			c.FullName,
			c.Identity.PassportNumber(),
			c.Identity.ControlNumber(),
			day(&c.DateOfBirth),
			c.Profession,
			c.CompanyName,
			c.VisaType,
			c.Country,
			string(c.Status),
			c.VisaNumber,
			day(c.VisaIssueDate),
			day(c.VisaExpiryDate),
			day(&c.ApplicationDate),
			c.Remarks,
			c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// FileName returns the download name for an export made at t.
func FileName(t time.Time) string {
	return "candidates-" + t.UTC().Format("2006-01-02") + ".xlsx"
}

func day(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

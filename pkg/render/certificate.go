package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/certchain-io/certchain-api/internal/models"
)

// Template identifiers accepted by the renderer.
const (
	TemplateClassic = "classic"
	TemplateModern  = "modern"
)

type palette struct {
	border  [3]int
	heading [3]int
	accent  [3]int
}

var palettes = map[string]palette{
	TemplateClassic: {
		border:  [3]int{30, 60, 114},
		heading: [3]int{30, 60, 114},
		accent:  [3]int{184, 134, 11},
	},
	TemplateModern: {
		border:  [3]int{33, 33, 33},
		heading: [3]int{0, 121, 107},
		accent:  [3]int{0, 121, 107},
	},
}

// CertificateRenderer produces the certificate PDF for a single record.
// One instance is shared across a whole batch; Render is a pure function of
// the template and record.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render builds the certificate document and returns the PDF bytes.
func (r *CertificateRenderer) Render(templateID string, rec models.CertificateRecord) ([]byte, error) {
	if rec.StudentName == "" {
		return nil, fmt.Errorf("record has no student name")
	}
	if rec.CertificateID == "" {
		return nil, fmt.Errorf("record has no certificate identifier")
	}
	pal, ok := palettes[templateID]
	if !ok {
		pal = palettes[TemplateClassic]
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	// Double border frame.
	pdf.SetDrawColor(pal.border[0], pal.border[1], pal.border[2])
	pdf.SetLineWidth(1.2)
	pdf.Rect(8, 8, 281, 194, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(12, 12, 273, 186, "D")

	pdf.SetY(28)
	pdf.SetFont("Times", "B", 22)
	pdf.SetTextColor(pal.heading[0], pal.heading[1], pal.heading[2])
	pdf.CellFormat(0, 12, strings.ToUpper(rec.Institution), "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Times", "", 16)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 8, "hereby certifies that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Times", "B", 30)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 16, rec.StudentName, "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Times", "", 16)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 8, "has been awarded the degree of", "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Times", "B", 20)
	pdf.SetTextColor(pal.accent[0], pal.accent[1], pal.accent[2])
	pdf.CellFormat(0, 12, rec.Degree, "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Times", "", 13)
	pdf.SetTextColor(80, 80, 80)
	issued := fmt.Sprintf("Issued on %s to student %s", rec.IssueDate.Format("January 2, 2006"), rec.StudentID)
	pdf.CellFormat(0, 8, issued, "", 1, "C", false, 0, "")

	pdf.SetY(182)
	pdf.SetFont("Courier", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate ID: %s", rec.CertificateID), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ApprovalRow is one line of the department sign-off table on a certificate.
type ApprovalRow struct {
	Department string
	Status     string
	ApprovedBy string
	ApprovedAt string
	Remarks    string
}

// CertificateData carries everything needed to render a clearance certificate.
type CertificateData struct {
	InstitutionName    string
	InstitutionAddress string
	Title              string
	Declaration        string

	StudentName      string
	CollegeID        string
	EnrollmentNumber string
	Department       string
	Year             int

	RequestID   string
	SubmittedAt string
	CompletedAt string

	Approvals []ApprovalRow
}

// CertificateRenderer renders clearance certificates as A4 PDFs.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces the PDF bytes for an approved clearance request.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.Title == "" {
		return nil, fmt.Errorf("certificate requires a title")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 40

	if data.InstitutionName != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.SetTextColor(0, 51, 102)
		pdf.CellFormat(usable, 8, data.InstitutionName, "", 1, "C", false, 0, "")
	}
	if data.InstitutionAddress != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(usable, 6, data.InstitutionAddress, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetDrawColor(200, 200, 200)
	x, y := pdf.GetXY()
	pdf.Line(x, y, x+usable, y)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(usable, 9, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	info := [][2]string{
		{"Student Name", data.StudentName},
		{"College ID", data.CollegeID},
		{"Enrollment No.", data.EnrollmentNumber},
		{"Department", data.Department},
		{"Year", fmt.Sprintf("%d", data.Year)},
		{"Request ID", data.RequestID},
		{"Submitted", data.SubmittedAt},
		{"Completed", data.CompletedAt},
	}
	for _, row := range info {
		if row[1] == "" || row[1] == "0" {
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(usable-45, 7, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(data.Approvals) > 0 {
		headers := []string{"Department / Subject", "Status", "Approved By", "Date", "Remarks"}
		widths := []float64{55, 22, 35, 25, usable - 137}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(235, 238, 245)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range data.Approvals {
			cells := []string{row.Department, strings.ToUpper(row.Status), row.ApprovedBy, row.ApprovedAt, row.Remarks}
			for i, value := range cells {
				pdf.CellFormat(widths[i], 7, value, "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	if data.Declaration != "" {
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(usable, 6, data.Declaration, "", "L", false)
		pdf.Ln(10)
	}

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(usable/2, 7, "Date: ____________________", "", 0, "L", false, 0, "")
	pdf.CellFormat(usable/2, 7, "Principal / Authorized Signatory", "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

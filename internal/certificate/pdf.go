package certificate

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/i18n"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// The built-in PDF fonts only cover the cp1252 code page, and the code page
// translator in gofpdf loads .map files from a font directory at runtime,
// which the binary does not ship. Cyrillic catalog text is romanized instead
// so certificates and reports stay renderable from a bare binary.
// TODO: embed a Unicode TTF via AddUTF8Font and drop the romanization.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "Yo",
	'Ж': "Zh", 'З': "Z", 'И': "I", 'Й': "Y", 'К': "K", 'Л': "L", 'М': "M",
	'Н': "N", 'О': "O", 'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U",
	'Ф': "F", 'Х': "Kh", 'Ц': "Ts", 'Ч': "Ch", 'Ш': "Sh", 'Щ': "Shch",
	'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "Yu", 'Я': "Ya",
}

// pdfSafe folds a string down to bytes the core PDF fonts can draw.
// Cyrillic letters are romanized, Latin-1 runes are written as their
// cp1252 byte, and anything else becomes a question mark.
func pdfSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := cyrillicToLatin[r]; ok {
			b.WriteString(repl)
			continue
		}
		if r <= 0xFF {
			b.WriteByte(byte(r))
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}

func levelRGB(level scan.SecurityLevel) (int, int, int) {
	switch level {
	case scan.LevelExcellent:
		return 16, 150, 72
	case scan.LevelGood:
		return 37, 99, 235
	case scan.LevelWarning:
		return 217, 119, 6
	default:
		return 220, 38, 38
	}
}

// RenderCertificatePDF renders the printable certificate for a terminal job.
// Output is byte-stable for a given certificate: the document creation date
// is pinned to the issuance time, so re-rendering yields identical bytes.
func RenderCertificatePDF(job *scan.Job, cert *scan.Certificate) ([]byte, error) {
	if job == nil || cert == nil {
		return nil, fmt.Errorf("render certificate: %w", sharederrors.ErrMissingRequired)
	}
	locale := i18n.Normalize(job.Locale())

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(cert.IssuedAt())
	pdf.AddPage()

	// Frame
	pdf.SetLineWidth(0.8)
	pdf.SetDrawColor(31, 58, 95)
	pdf.Rect(10, 10, 190, 277, "D")
	pdf.SetLineWidth(0.2)
	pdf.SetDrawColor(160, 174, 192)
	pdf.Rect(13, 13, 184, 271, "D")

	// Title
	pdf.SetY(32)
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(31, 58, 95)
	pdf.CellFormat(0, 12, pdfSafe(i18n.T(locale, "certificate_title")), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, pdfSafe(i18n.T(locale, "certificate_subtitle")), "", 1, "C", false, 0, "")
	pdf.Ln(12)

	// Target
	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 7, pdfSafe(i18n.T(locale, "issued_to")), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 11, pdfSafe(job.TargetHost()), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	// Score
	r, g, b := levelRGB(cert.Level())
	pdf.SetFont("Arial", "B", 42)
	pdf.SetTextColor(r, g, b)
	pdf.CellFormat(0, 20, fmt.Sprintf("%d/100", cert.Score()), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, pdfSafe(i18n.T(locale, string(cert.Level()))), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	// Dates
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(80, 80, 80)
	scanDate := cert.IssuedAt()
	if !job.CompletedAt().IsZero() {
		scanDate = job.CompletedAt()
	}
	pdf.CellFormat(0, 7, fmt.Sprintf("%s: %s", pdfSafe(i18n.T(locale, "scan_date")), scanDate.Format("02.01.2006")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%s: %s", pdfSafe(i18n.T(locale, "valid_until")), cert.ValidUntil().Format("02.01.2006")), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	// Verification QR
	png, err := qrcode.Encode(cert.VerificationURL(), qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("encode verification QR: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verification-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	const qrSize = 42.0
	pdf.ImageOptions("verification-qr", (pageW-qrSize)/2, pdf.GetY(), qrSize, qrSize, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + qrSize + 4)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, pdfSafe(i18n.T(locale, "qr_verification")), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	// Token, verifiable offline against the signing secret
	pdf.SetFont("Courier", "", 8)
	pdf.SetTextColor(130, 130, 130)
	pdf.CellFormat(0, 5, cert.Token(), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderReportPDF renders the detailed findings report. Output is byte-stable
// for a given report because the creation date is pinned to GeneratedAt.
func RenderReportPDF(report *Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render report: %w", sharederrors.ErrMissingRequired)
	}
	locale := i18n.Normalize(report.Locale)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(report.GeneratedAt)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(31, 58, 95)
	pdf.CellFormat(0, 10, pdfSafe(i18n.T(locale, "security_report")), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s | %s", pdfSafe(report.Target), report.GeneratedAt.Format("02.01.2006")), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	// Executive summary
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, pdfSafe(i18n.T(locale, "executive_summary")), "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s: %d/100 (%s)", pdfSafe(i18n.T(locale, "score")), report.Score, pdfSafe(i18n.T(locale, report.SecurityLevel))), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("%s: %s", pdfSafe(i18n.T(locale, "status")), strings.ToUpper(report.Status)), "", 1, "", false, 0, "")
	issueTotal := 0
	for _, section := range report.Probes {
		issueTotal += len(section.Issues)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("%s: %d", pdfSafe(i18n.T(locale, "issues_found")), issueTotal), "", 1, "", false, 0, "")
	pdf.Ln(6)

	// Findings per probe
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, pdfSafe(i18n.T(locale, "detailed_findings")), "", 1, "", false, 0, "")
	pdf.Ln(1)
	const maxIssueLines = 6
	for _, section := range report.Probes {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		header := fmt.Sprintf("%s - %s", section.Label, strings.ToUpper(section.Result))
		if section.Usable {
			header = fmt.Sprintf("%s - %d/100", section.Label, section.SubScore)
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, pdfSafe(header), "", 1, "", true, 0, "")
		pdf.Ln(1)
		if section.Error != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.MultiCell(0, 5, pdfSafe(fmt.Sprintf("%s: %s", i18n.T(locale, "error"), section.Error)), "", "", false)
		}
		pdf.SetFont("Arial", "", 9)
		for idx, issue := range section.Issues {
			if idx == maxIssueLines {
				pdf.SetFont("Arial", "I", 9)
				pdf.CellFormat(0, 5, pdfSafe(i18n.T(locale, "more_issues", len(section.Issues)-maxIssueLines)), "", 1, "", false, 0, "")
				break
			}
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			pdf.MultiCell(0, 5, pdfSafe("- "+issue), "", "", false)
		}
		pdf.Ln(3)
	}

	// Action plan
	if len(report.Recommendations) > 0 {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, pdfSafe(i18n.T(locale, "action_plan")), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for idx, rec := range report.Recommendations {
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			pdf.MultiCell(0, 6, pdfSafe(fmt.Sprintf("%d. %s", idx+1, rec)), "", "", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report PDF: %w", err)
	}
	return buf.Bytes(), nil
}

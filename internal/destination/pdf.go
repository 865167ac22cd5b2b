package destination

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/newsdigest/internal/blocks"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PDFWriter archives each page as a PDF file under Dir.
type PDFWriter struct {
	Dir string
	// Now stamps file names; defaults to time.Now.
	Now func() time.Time
}

// Create renders doc and returns the written file path.
func (w *PDFWriter) Create(_ context.Context, doc Document) (string, error) {
	if w.Dir == "" {
		return "", errors.New("pdf archive dir not configured")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	name := strings.Trim(unsafeNameRe.ReplaceAllString(doc.Title(), "-"), "-")
	if name == "" {
		name = "newsletter"
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("%s-%s.pdf", now().UTC().Format("20060102-150405"), blocks.Clip(name, 60)))

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(doc.Title()), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range propertyLines(doc) {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(4)

	for _, b := range doc.Blocks {
		switch b.Kind {
		case blocks.Divider:
			y := pdf.GetY() + 2
			pdf.Line(10, y, 200, y)
			pdf.Ln(5)
		case blocks.Heading1, blocks.Heading2, blocks.Heading3:
			size := map[blocks.Kind]float64{blocks.Heading1: 15, blocks.Heading2: 13, blocks.Heading3: 12}[b.Kind]
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, 7, tr(b.Text), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
		default:
			prefix := b.Label
			if b.Kind == blocks.Bullet {
				prefix = "• " + prefix
			}
			if b.URL != "" {
				if prefix != "" {
					pdf.Write(5, tr(prefix))
				}
				pdf.WriteLinkString(5, tr(b.Text), b.URL)
				pdf.Ln(6)
				continue
			}
			pdf.MultiCell(0, 5, tr(prefix+b.Text), "", "L", false)
			pdf.Ln(1)
		}
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

func propertyLines(doc Document) []string {
	names := make([]string, 0, len(doc.Properties))
	for n, p := range doc.Properties {
		if p.Type != Title {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	var out []string
	for _, n := range names {
		p := doc.Properties[n]
		var v string
		switch p.Type {
		case Number:
			v = fmt.Sprintf("%.2f", p.Number)
		case Date:
			if !p.Date.IsZero() {
				v = p.Date.Format("2006-01-02 15:04")
			}
		default:
			v = p.Text
		}
		if v != "" {
			out = append(out, n+": "+v)
		}
	}
	return out
}

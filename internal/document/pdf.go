// Package document turns uploaded PDF files into plain text and local files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const MIMETypePDF = "application/pdf"

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned for uploads that are not PDF documents.
var ErrNotPDF = errors.New("file is not a PDF document")

// ExtractText returns the plain text of every page, in page order, with nothing
// inserted between pages. A failure on any page fails the whole document.
func ExtractText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	return concatPages(r.NumPage(), func(n int) (string, error) {
		page := r.Page(n)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
}

// concatPages joins the text of pages 1..numPages.
func concatPages(numPages int, pageText func(n int) (string, error)) (string, error) {
	var buf strings.Builder
	for i := 1; i <= numPages; i++ {
		text, err := pageText(i)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

// IsPDF reports whether name has a .pdf extension and content carries the PDF header.
func IsPDF(name string, content []byte) bool {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return false
	}
	return bytes.HasPrefix(content, pdfMagic)
}

// SaveLocal writes content under dir using the base name of name and returns the path.
func SaveLocal(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	return path, nil
}

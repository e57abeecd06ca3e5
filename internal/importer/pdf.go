// Package importer pulls job description text out of saved postings.
package importer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// maxDescriptionBytes caps imported text so a huge brochure does not end up
// in a single record.
const maxDescriptionBytes = 64 << 10

// ExtractPDFText returns the plain text of the PDF at path with whitespace
// runs collapsed and blank lines squeezed.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(text, maxDescriptionBytes)); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", filepath.Base(path), err)
	}
	return Normalize(buf.String()), nil
}

// ReadDescription loads a job description from a .pdf or plain text file.
func ReadDescription(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ExtractPDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxDescriptionBytes {
		data = data[:maxDescriptionBytes]
	}
	return Normalize(string(data)), nil
}

// Normalize collapses horizontal whitespace, trims every line, and keeps at
// most one blank line between paragraphs.
func Normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

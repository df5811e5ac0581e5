// Package extract turns uploaded files of heterogeneous formats into
// normalized plain text ready for chunking.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("extract: unsupported document format")
	ErrCorruptDocument   = errors.New("extract: document is corrupt or unreadable")
	ErrEmptyDocument     = errors.New("extract: document contains no extractable text")
)

// extractors maps a normalized format tag to its extraction function.
// Supporting a new format means adding one entry here.
var extractors = map[string]func(data []byte) (string, error){
	"pdf":  extractPDF,
	"docx": extractDOCX,
	"md":   extractMarkdown,
	"txt":  extractPlainText,
	"csv":  extractCSV,
	"json": extractJSON,
	"xlsx": extractXLSX,
}

// Extract converts file bytes of the declared format into normalized plain
// text. The declared format may be a file extension (with or without the
// leading dot) or one of the known aliases.
func Extract(data []byte, format string) (string, error) {
	fn, ok := extractors[NormalizeFormat(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	text = normalizeText(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// Supported reports whether the declared format has a registered extractor.
func Supported(format string) bool {
	_, ok := extractors[NormalizeFormat(format)]
	return ok
}

// NormalizeFormat canonicalizes a declared format tag ("PDF", ".md",
// "markdown", "text") to the extractor key.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch f {
	case "markdown":
		return "md"
	case "text", "plain":
		return "txt"
	}
	return f
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// normalizeText collapses whitespace runs while keeping paragraph breaks
// (blank lines) intact, since the chunker uses them as cut points.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")

	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

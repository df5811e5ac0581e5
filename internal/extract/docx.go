package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docx files are ZIP containers; the text body lives in word/document.xml.
// Element matching is by local name, so the w: namespace needs no handling.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Texts []string `xml:"t"`
	} `xml:"r"`
}

func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container failed: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml failed: %w", err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml failed: %w", err)
		}

		var doc docxDocument
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("parse document.xml failed: %w", err)
		}

		var b strings.Builder
		for _, p := range doc.Body.Paragraphs {
			var line strings.Builder
			for _, r := range p.Runs {
				for _, t := range r.Texts {
					line.WriteString(t)
				}
			}
			if line.Len() > 0 {
				if b.Len() > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(line.String())
			}
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("document.xml not found in docx container")
}

package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// extractMarkdown parses the document and collects the text content of the
// AST, so formatting syntax (emphasis, links, heading markers) never leaks
// into the indexed text.
func extractMarkdown(data []byte) (string, error) {
	md := goldmark.New()
	root := md.Parser().Parse(gtext.NewReader(data))

	var b strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
		case *ast.Text:
			b.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			writeCodeLines(&b, node.Lines(), data)
		case *ast.CodeBlock:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			writeCodeLines(&b, node.Lines(), data)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCodeLines(b *strings.Builder, lines *gtext.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
}

package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExtractPlainText(t *testing.T) {
	text, err := Extract([]byte("hello   world\r\n\r\n\r\nsecond  paragraph"), "txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n\nsecond paragraph", text)
}

func TestExtractFormatAliases(t *testing.T) {
	for _, format := range []string{"txt", ".txt", "TXT", "text", "plain"} {
		text, err := Extract([]byte("content"), format)
		require.NoError(t, err, format)
		assert.Equal(t, "content", text)
	}
	assert.True(t, Supported("markdown"))
	assert.False(t, Supported("exe"))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := Extract([]byte("x"), "exe")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractEmptyDocument(t *testing.T) {
	_, err := Extract([]byte("  \n\t  "), "txt")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestExtractMarkdownStripsSyntax(t *testing.T) {
	src := "# Title\n\nSome *emphasized* text with a [link](https://example.com).\n\n- first item\n- second item\n"
	text, err := Extract([]byte(src), "md")
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some emphasized text with a link.")
	assert.Contains(t, text, "first item")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "*")
	assert.NotContains(t, text, "https://example.com")
}

func TestExtractCSV(t *testing.T) {
	src := "name,age\nalice,30\nbob,25\n"
	text, err := Extract([]byte(src), "csv")
	require.NoError(t, err)
	assert.Contains(t, text, "Table with 2 records and columns: name, age")
	assert.Contains(t, text, "name: alice; age: 30")
	assert.Contains(t, text, "name: bob; age: 25")
}

func TestExtractJSON(t *testing.T) {
	src := `{"title":"Annual report","tags":["finance","2025"],"pages":12}`
	text, err := Extract([]byte(src), "json")
	require.NoError(t, err)
	assert.Contains(t, text, `"title": "Annual report"`)
	assert.Contains(t, text, `"finance"`)
	assert.Contains(t, text, `"pages": 12`)
}

func TestExtractCorruptJSON(t *testing.T) {
	_, err := Extract([]byte("{not json"), "json")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractXLSX(t *testing.T) {
	text, err := Extract(buildXLSX(t), "xlsx")
	require.NoError(t, err)
	assert.Contains(t, text, `Sheet "Sheet1" with 2 records and columns: name, age`)
	assert.Contains(t, text, "name: alice; age: 30")
	assert.Contains(t, text, "name: bob; age: 25")
}

func TestExtractCorruptXLSX(t *testing.T) {
	_, err := Extract([]byte("not a workbook"), "xlsx")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractDOCX(t *testing.T) {
	text, err := Extract(buildDOCX(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`), "docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", text)
}

func TestExtractCorruptDOCX(t *testing.T) {
	_, err := Extract([]byte("not a zip archive"), "docx")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractCorruptPDF(t *testing.T) {
	_, err := Extract([]byte("definitely not a pdf"), "pdf")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func buildXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"name", "age"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"alice", 30}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"bob", 25}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

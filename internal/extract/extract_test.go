package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText_TXT(t *testing.T) {
	x := New()

	text, err := x.ExtractText([]byte("\xef\xbb\xbfhello world\n"), ".TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	legacy, err := charmap.Windows1251.NewEncoder().String("Привет, рынок")
	require.NoError(t, err)
	text, err = x.ExtractText([]byte(legacy), ".txt")
	require.NoError(t, err)
	assert.Equal(t, "Привет, рынок", text)
}

func TestExtractText_DOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Acme Corp</w:t></w:r><w:r><w:t xml:space="preserve"> annual report</w:t></w:r></w:p>
<w:p><w:r><w:t>Revenue grew</w:t><w:tab/><w:t>12%</w:t></w:r></w:p>
</w:body>
</w:document>`
	raw := zipOf(t, map[string]string{"word/document.xml": doc, "[Content_Types].xml": "<Types/>"})

	for _, ext := range []string{".docx", ".doc"} {
		text, err := New().ExtractText(raw, ext)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp annual report\nRevenue grew\t12%", text)
	}
}

func TestExtractText_DOCXMissingBody(t *testing.T) {
	raw := zipOf(t, map[string]string{"other.xml": "<x/>"})
	_, err := New().ExtractText(raw, ".docx")
	require.Error(t, err)
	var unsupported *UnsupportedFormatError
	assert.NotErrorAs(t, err, &unsupported)
}

func TestExtractText_PPTX(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	raw := zipOf(t, map[string]string{
		"ppt/slides/slide10.xml":            slide("tenth"),
		"ppt/slides/slide2.xml":             slide("second"),
		"ppt/slides/slide1.xml":             slide("first"),
		"ppt/slides/_rels/slide1.xml.rels":  "<Relationships/>",
		"ppt/slideLayouts/slideLayout1.xml": slide("layout"),
	})

	text, err := New().ExtractText(raw, ".pptx")
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\ntenth", text)
}

func TestExtractText_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Company"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Revenue"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Acme"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	text, err := New().ExtractText(buf.Bytes(), ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, "# Sheet1\nCompany\tRevenue\nAcme\t42", text)
}

func TestExtractText_BrokenFiles(t *testing.T) {
	for _, ext := range []string{".docx", ".pptx", ".xlsx", ".pdf"} {
		t.Run(ext, func(t *testing.T) {
			_, err := New().ExtractText([]byte("definitely not a document"), ext)
			assert.Error(t, err)
		})
	}
}

func TestExtractText_Unsupported(t *testing.T) {
	_, err := New().ExtractText([]byte("x"), ".exe")
	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ".exe", unsupported.Ext)
	assert.Equal(t, SupportedExtensions, unsupported.Supported)
	assert.Contains(t, err.Error(), ".pdf")
}

func TestSupported_ReturnsCopy(t *testing.T) {
	s := New().Supported()
	s[0] = ".mutated"
	assert.Equal(t, ".doc", SupportedExtensions[0])
}

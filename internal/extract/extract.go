// Package extract turns uploaded documents into plain text for the pipeline.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// SupportedExtensions lists every accepted file extension.
var SupportedExtensions = []string{".doc", ".docx", ".pdf", ".ppt", ".pptx", ".txt", ".xlsx"}

// UnsupportedFormatError is returned for a file extension with no extractor.
type UnsupportedFormatError struct {
	Ext       string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q (supported: %s)", e.Ext, strings.Join(e.Supported, ", "))
}

// Extractor dispatches on the file extension.
type Extractor struct{}

// New creates an extractor.
func New() *Extractor { return &Extractor{} }

// Supported returns the accepted extensions.
func (x *Extractor) Supported() []string {
	return append([]string(nil), SupportedExtensions...)
}

// ExtractText returns the text content of raw. ext includes the dot and is
// matched case-insensitively.
func (x *Extractor) ExtractText(raw []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		text = decodeText(raw)
	case ".docx", ".doc":
		text, err = extractDocx(raw)
	case ".pptx", ".ppt":
		text, err = extractPptx(raw)
	case ".xlsx":
		text, err = extractXlsx(raw)
	case ".pdf":
		text, err = extractPDF(raw)
	default:
		return "", &UnsupportedFormatError{Ext: ext, Supported: x.Supported()}
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return strings.TrimSpace(text), nil
}

// decodeText reads UTF-8, falling back to Windows-1251 for legacy files.
func decodeText(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := charmap.Windows1251.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func openZip(raw []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// xmlText collects the character data of every element named textTag and
// starts a new line at the end of every paraTag element.
func xmlText(data []byte, textTag, paraTag string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textTag:
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func extractDocx(raw []byte) (string, error) {
	zr, err := openZip(raw)
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		return xmlText(data, "t", "p")
	}
	return "", fmt.Errorf("word/document.xml not found")
}

func extractPptx(raw []byte) (string, error) {
	zr, err := openZip(raw)
	if err != nil {
		return "", err
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, f: f})
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	blocks := make([]string, 0, len(slides))
	for _, s := range slides {
		data, err := readZipFile(s.f)
		if err != nil {
			return "", err
		}
		text, err := xmlText(data, "t", "p")
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.n, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func extractXlsx(raw []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "# %s\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func extractPDF(raw []byte) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

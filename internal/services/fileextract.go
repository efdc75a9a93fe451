package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// ExtractMethod selects how PDF text is read.
type ExtractMethod string

const (
	MethodPrimary   ExtractMethod = "primary"
	MethodAlternate ExtractMethod = "alternate"
	MethodAuto      ExtractMethod = "auto"
)

var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrNoDocumentText      = errors.New("no extractable text found")
)

const (
	// primary output scoring below this is re-read with the alternate method
	minTextQuality   = 0.6
	minQualityLength = 50
)

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// ExtractText reads plain text from a .pdf, .txt or .docx payload. The
// extension decides the format; payloads without a known one are sniffed.
func (s *FileExtractService) ExtractText(data []byte, filename string, method ExtractMethod) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrNoDocumentText)
	}

	switch documentKind(data, filename) {
	case ".txt":
		return s.extractTXT(data)
	case ".pdf":
		return s.extractPDF(data, method)
	case ".docx":
		return s.extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, filename)
	}
}

func documentKind(data []byte, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".pdf", ".docx":
		return ext
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return ".pdf"
	case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return ".docx"
	case mt.Is("text/plain"):
		return ".txt"
	}
	return ext
}

func (s *FileExtractService) extractTXT(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnsupportedDocument)
	}

	text := normalizeExtractedText(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: text file is empty", ErrNoDocumentText)
	}

	return text, nil
}

func (s *FileExtractService) extractPDF(data []byte, method ExtractMethod) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDocument, err)
	}

	var text string
	switch method {
	case MethodAlternate:
		text = pdfTextByRow(reader)
	case MethodPrimary:
		text = pdfPlainText(reader)
	default:
		text = pdfPlainText(reader)
		if textQuality(text) < minTextQuality {
			if alt := pdfTextByRow(reader); textQuality(alt) > textQuality(text) {
				text = alt
			}
		}
	}

	text = normalizeExtractedText(text)
	if text == "" {
		return "", fmt.Errorf("%w in pdf", ErrNoDocumentText)
	}

	return text, nil
}

func pdfPlainText(reader *pdf.Reader) string {
	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// pdfTextByRow rebuilds lines from positioned text runs, which recovers
// layouts where the content stream order is scrambled.
func pdfTextByRow(reader *pdf.Reader) string {
	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// textQuality scores extracted text in [0,1]: the share of letters, digits,
// punctuation and spaces, zeroed for output too short to be useful.
func textQuality(s string) float64 {
	s = strings.TrimSpace(s)
	total := utf8.RuneCountInString(s)
	if total < minQualityLength {
		return 0
	}

	good := 0
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
		case unicode.IsControl(r) && r != '\n' && r != '\t':
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSpace(r), unicode.IsSymbol(r):
			good++
		}
	}
	return float64(good) / float64(total)
}

func (s *FileExtractService) extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDocument, err)
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			documentXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", err
			}
			break
		}
	}

	if len(documentXML) == 0 {
		return "", fmt.Errorf("%w: docx document.xml not found", ErrUnsupportedDocument)
	}

	text := stripDOCXML(documentXML)
	text = normalizeExtractedText(text)
	if text == "" {
		return "", fmt.Errorf("%w in docx", ErrNoDocumentText)
	}

	return text, nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func stripDOCXML(src []byte) string {
	s := string(src)

	// DOCX paragraphs and line breaks
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	// Remove all xml tags
	s = xmlTagPattern.ReplaceAllString(s, "")

	// Basic XML entities
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
	return replacer.Replace(s)
}

// normalizeExtractedText trims every line and collapses runs of blank lines
// to one, keeping the paragraph breaks the segmenter relies on.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	buf := bytes.Buffer{}

	emptyCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}

package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// Extractor turns one uploaded file into raw pre-chunk records.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error)
}

// ExtractorRegistry maps file extensions to extractors.
type ExtractorRegistry struct {
	extractors map[string]Extractor
	ocr        *OCRClient
}

// NewExtractorRegistry registers the built-in extractors. ocr may be nil;
// the PDF extractor then skips its scanned-page fallback and the image
// extractor is not registered.
func NewExtractorRegistry(ocr *OCRClient) *ExtractorRegistry {
	r := &ExtractorRegistry{extractors: make(map[string]Extractor), ocr: ocr}

	text := &TextExtractor{}
	md := &MarkdownExtractor{}
	csvx := &CSVExtractor{}
	xlsx := &SpreadsheetExtractor{}
	html := &HTMLExtractor{}
	jsonx := &JSONExtractor{}
	xmlx := &XMLExtractor{}
	docx := &DocxExtractor{}
	pdf := &PDFExtractor{ocr: ocr}

	r.Register(".txt", text)
	r.Register(".md", md)
	r.Register(".markdown", md)
	r.Register(".csv", csvx)
	r.Register(".xlsx", xlsx)
	r.Register(".xls", xlsx)
	r.Register(".html", html)
	r.Register(".htm", html)
	r.Register(".json", jsonx)
	r.Register(".xml", xmlx)
	r.Register(".docx", docx)
	r.Register(".pdf", pdf)

	if ocr != nil {
		img := &ImageExtractor{ocr: ocr}
		for _, ext := range []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"} {
			r.Register(ext, img)
		}
	}
	return r
}

func (r *ExtractorRegistry) Register(ext string, e Extractor) {
	r.extractors[strings.ToLower(ext)] = e
}

// Get returns the extractor for a filename's extension, or an
// UnsupportedFormat error.
func (r *ExtractorRegistry) Get(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e, ok := r.extractors[ext]
	if !ok {
		return nil, utils.NewError(utils.KindUnsupportedFormat, "extractor",
			fmt.Sprintf("unsupported file extension %q", ext), nil)
	}
	return e, nil
}

// SupportedExtensions lists the registered extensions.
func (r *ExtractorRegistry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	return exts
}

// Extract dispatches by extension and stamps the filename and file type on
// every record.
func (r *ExtractorRegistry) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	e, err := r.Get(filename)
	if err != nil {
		return nil, err
	}
	pre, err := e.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for i := range pre {
		pre[i].Filename = filename
		if pre[i].FileType == "" {
			pre[i].FileType = ext
		}
	}
	return pre, nil
}

// RetryWithOCR re-extracts through the OCR sidecar. Used when extraction
// succeeded but chunking produced nothing indexable; only formats the
// sidecar can rasterize qualify. Returns false when no OCR path applies.
func (r *ExtractorRegistry) RetryWithOCR(ctx context.Context, filename string, data []byte) ([]models.PreChunk, bool) {
	if r.ocr == nil {
		return nil, false
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp":
	default:
		return nil, false
	}

	text, err := r.ocr.ExtractText(ctx, filename, data)
	if err != nil {
		logger.Warn("OCR retry failed", "filename", filename, "error", err)
		return nil, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	return []models.PreChunk{{
		Filename:  filename,
		FileType:  strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		Text:      text,
		ChunkType: models.ChunkOCR,
	}}, true
}

// TextExtractor decodes plain text, trying utf-8 then single-byte legacy
// encodings in order.
type TextExtractor struct{}

var legacyDecoders = []struct {
	name string
	enc  *charmap.Charmap
}{
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

func (e *TextExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	return []models.PreChunk{{
		Text:      text,
		ChunkType: models.ChunkSemantic,
	}}, nil
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, d := range legacyDecoders {
		decoded, err := decodeWith(d.enc.NewDecoder(), data)
		if err == nil {
			return decoded, nil
		}
	}
	return "", utils.NewError(utils.KindDecodeFailed, "extractor",
		"text is not valid utf-8, latin-1, cp1252 or iso-8859-1", nil)
}

func decodeWith(dec *encoding.Decoder, data []byte) (string, error) {
	out, err := dec.Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// MarkdownExtractor passes markdown through verbatim; the chunker handles
// its structure.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	return []models.PreChunk{{
		Text:      text,
		ChunkType: models.ChunkMarkdown,
	}}, nil
}

// CSVExtractor emits one record per data row, rendered as "header: value"
// pairs so row chunks stay self-describing.
type CSVExtractor struct{}

func (e *CSVExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, utils.NewError(utils.KindParseFailed, "extractor", "malformed CSV", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	var pre []models.PreChunk
	for i, row := range rows[1:] {
		var parts []string
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if j < len(header) && strings.TrimSpace(header[j]) != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimSpace(header[j]), cell))
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) == 0 {
			continue
		}
		pre = append(pre, models.PreChunk{
			Text:        strings.Join(parts, ", "),
			ChunkType:   models.ChunkTableRow,
			RecordIndex: i + 1,
		})
	}
	return pre, nil
}

package services

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// scannedProbePages is how many leading pages the scanned-PDF heuristic
// inspects.
const scannedProbePages = 3

// scannedCharsPerPage: below this average of extractable characters per
// probed page the document is treated as scanned.
const scannedCharsPerPage = 50

// PDFExtractor extracts text page by page with the native parser, falling
// back to the OCR sidecar for scanned documents.
type PDFExtractor struct {
	ocr *OCRClient
}

func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if e.ocr != nil {
			logger.Warn("native PDF open failed, trying OCR", "filename", filename, "error", err)
			return e.extractOCR(ctx, filename, data)
		}
		return nil, utils.NewError(utils.KindExtractionFailed, "pdf-extractor", "opening PDF", err)
	}

	if e.ocr != nil && isScanned(reader) {
		logger.Info("PDF looks scanned, routing to OCR", "filename", filename)
		pre, err := e.extractOCR(ctx, filename, data)
		if err == nil && len(pre) > 0 {
			return pre, nil
		}
		logger.Warn("OCR failed for scanned PDF, falling back to native", "filename", filename, "error", err)
	}

	pre := extractNative(reader)

	// Post-hoc retry: a PDF that parses but yields nothing is usually
	// image-only after all.
	if len(pre) == 0 && e.ocr != nil {
		logger.Info("native extraction produced no text, retrying with OCR", "filename", filename)
		return e.extractOCR(ctx, filename, data)
	}
	if len(pre) == 0 {
		return nil, utils.NewError(utils.KindExtractionFailed, "pdf-extractor", "no extractable text in PDF", nil)
	}
	return pre, nil
}

// isScanned probes the first pages and compares extractable text volume
// against the scanned threshold.
func isScanned(reader *pdf.Reader) bool {
	pages := reader.NumPage()
	probe := scannedProbePages
	if pages < probe {
		probe = pages
	}
	if probe == 0 {
		return true
	}

	total := 0
	for i := 1; i <= probe; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		total += len(strings.TrimSpace(text))
	}
	return total/probe < scannedCharsPerPage
}

func extractNative(reader *pdf.Reader) []models.PreChunk {
	var pre []models.PreChunk
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pre = append(pre, models.PreChunk{
			Text:      text,
			ChunkType: models.ChunkSemantic,
			Page:      i,
		})
	}
	return pre
}

func (e *PDFExtractor) extractOCR(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	text, err := e.ocr.ExtractText(ctx, filename, data)
	if err != nil {
		return nil, utils.NewError(utils.KindExtractionFailed, "pdf-extractor", "OCR extraction failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.NewError(utils.KindExtractionFailed, "pdf-extractor", "OCR returned no text", nil)
	}
	return []models.PreChunk{{
		Text:      text,
		ChunkType: models.ChunkOCR,
	}}, nil
}

// ImageExtractor routes standalone images through the OCR sidecar.
type ImageExtractor struct {
	ocr *OCRClient
}

func (e *ImageExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	text, err := e.ocr.ExtractText(ctx, filename, data)
	if err != nil {
		return nil, utils.NewError(utils.KindExtractionFailed, "image-extractor", "OCR extraction failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.NewError(utils.KindExtractionFailed, "image-extractor", "OCR returned no text", nil)
	}
	return []models.PreChunk{{
		Text:      text,
		ChunkType: models.ChunkOCR,
	}}, nil
}

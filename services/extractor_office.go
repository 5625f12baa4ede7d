package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// SpreadsheetExtractor emits one record per data row across all sheets,
// rendered as "header: value" pairs like the CSV extractor.
type SpreadsheetExtractor struct{}

func (e *SpreadsheetExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, utils.NewError(utils.KindParseFailed, "xlsx-extractor", "opening spreadsheet", err)
	}
	defer f.Close()

	var pre []models.PreChunk
	idx := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		header := rows[0]
		for _, row := range rows[1:] {
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
				Text:        fmt.Sprintf("[%s] %s", sheet, strings.Join(parts, ", ")),
				ChunkType:   models.ChunkTableRow,
				RecordIndex: idx,
				TagPath:     sheet,
			})
			idx++
		}
	}
	return pre, nil
}

// DocxExtractor pulls the paragraph text out of word/document.xml.
// Formatting, tables and embedded media are ignored.
type DocxExtractor struct{}

func (e *DocxExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, utils.NewError(utils.KindParseFailed, "docx-extractor", "opening docx archive", err)
	}

	var docXML []byte
	for _, zf := range zr.File {
		if zf.Name == "word/document.xml" {
			rc, err := zf.Open()
			if err != nil {
				return nil, utils.NewError(utils.KindParseFailed, "docx-extractor", "reading document.xml", err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, utils.NewError(utils.KindParseFailed, "docx-extractor", "reading document.xml", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, utils.NewError(utils.KindParseFailed, "docx-extractor", "document.xml not found in archive", nil)
	}

	text, err := docxParagraphText(docXML)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.PreChunk{{
		Text:      text,
		ChunkType: models.ChunkSemantic,
	}}, nil
}

// docxParagraphText walks the WordprocessingML token stream collecting w:t
// runs and inserting newlines at paragraph ends.
func docxParagraphText(docXML []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", utils.NewError(utils.KindParseFailed, "docx-extractor", "malformed document.xml", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

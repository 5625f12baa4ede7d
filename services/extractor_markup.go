package services

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// HTMLExtractor strips markup and emits one record per content block.
type HTMLExtractor struct{}

func (e *HTMLExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, utils.NewError(utils.KindParseFailed, "html-extractor", "malformed HTML", err)
	}

	doc.Find("script, style, noscript").Remove()

	var pre []models.PreChunk
	idx := 0
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		pre = append(pre, models.PreChunk{
			Text:        text,
			ChunkType:   models.ChunkSemantic,
			RecordIndex: idx,
			TagPath:     goquery.NodeName(s),
		})
		idx++
	})

	if len(pre) == 0 {
		// No block structure; fall back to the whole body text.
		body := strings.TrimSpace(doc.Find("body").Text())
		if body == "" {
			body = strings.TrimSpace(doc.Text())
		}
		if body == "" {
			return nil, nil
		}
		pre = append(pre, models.PreChunk{Text: body, ChunkType: models.ChunkSemantic})
	}

	// Merge the per-block records back into one semantic document so the
	// chunker controls the final granularity.
	var sb strings.Builder
	for _, p := range pre {
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	return []models.PreChunk{{
		Text:      strings.TrimSpace(sb.String()),
		ChunkType: models.ChunkSemantic,
	}}, nil
}

// JSONExtractor flattens the document into leaf paths, one record per
// scalar leaf.
type JSONExtractor struct{}

func (e *JSONExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	var root any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return nil, utils.NewError(utils.KindParseFailed, "json-extractor",
			fmt.Sprintf("malformed JSON at offset %d", dec.InputOffset()), err)
	}

	leaves := map[string]string{}
	collectJSONLeaves(root, "$", leaves)
	if len(leaves) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	pre := make([]models.PreChunk, 0, len(paths))
	for i, p := range paths {
		pre = append(pre, models.PreChunk{
			Text:        fmt.Sprintf("%s: %s", p, leaves[p]),
			ChunkType:   models.ChunkJSONLeaf,
			RecordIndex: i,
			TagPath:     p,
		})
	}
	return pre, nil
}

func collectJSONLeaves(node any, path string, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			collectJSONLeaves(child, path+"."+k, out)
		}
	case []any:
		for i, child := range v {
			collectJSONLeaves(child, fmt.Sprintf("%s[%d]", path, i), out)
		}
	case nil:
		// skip nulls
	default:
		out[path] = fmt.Sprintf("%v", v)
	}
}

// XMLExtractor emits one record per element that holds character data.
type XMLExtractor struct{}

func (e *XMLExtractor) Extract(ctx context.Context, filename string, data []byte) ([]models.PreChunk, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var pre []models.PreChunk
	var path []string
	idx := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, utils.NewError(utils.KindParseFailed, "xml-extractor",
				fmt.Sprintf("malformed XML at offset %d", dec.InputOffset()), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(path) == 0 {
				continue
			}
			pre = append(pre, models.PreChunk{
				Text:        fmt.Sprintf("%s: %s", strings.Join(path, "/"), text),
				ChunkType:   models.ChunkXMLElement,
				RecordIndex: idx,
				TagPath:     strings.Join(path, "/"),
			})
			idx++
		}
	}
	return pre, nil
}

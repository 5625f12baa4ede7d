package services

import (
	"regexp"
	"strings"

	"rag-chatbot-backend/models"
)

// structure header families. A document counts as structured when at least
// two distinct families match somewhere in its text.
var structureFamilies = []*regexp.Regexp{
	regexp.MustCompile(`(?im)chapter\s+\d+`),
	regexp.MustCompile(`(?im)section\s+\d+`),
	regexp.MustCompile(`(?m)^\d+\.\s+`),
	regexp.MustCompile(`(?im)part\s+\d+`),
	regexp.MustCompile(`(?im)article\s+\d+`),
}

// headerLineRe matches a single line that opens a new section, capturing the
// section type, number and trailing title.
var headerLineRe = regexp.MustCompile(`(?i)^\s*(chapter|section|part|article)\s+(\d+[a-z]?)\.?\s*(.*)$`)

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)\.\s+(.*)$`)

// recursive splitter separators, decreasing granularity
var splitSeparators = []string{"\n\n", "\n", ".", "!", "?", " ", ""}

const minChunkChars = 50

// Chunker turns extracted pre-chunks into indexed chunks. Free text goes
// through structure detection and one of two splitting strategies; tabular
// and markup records pass through one record per chunk.
type Chunker struct {
	chunkSize int
	overlap   int
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize < 100 {
		chunkSize = 100
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits the pre-chunks of one document, assigning dense chunk
// indexes in emission order.
func (ck *Chunker) Chunk(pre []models.PreChunk) []models.Chunk {
	var chunks []models.Chunk
	next := 0

	for _, pc := range pre {
		switch pc.ChunkType {
		case models.ChunkSemantic, models.ChunkOCR, models.ChunkMarkdown, models.ChunkFullDocument, "":
			for _, piece := range ck.splitText(pc.Text) {
				piece.Filename = pc.Filename
				piece.PageNumber = pc.Page
				piece.ChunkType = pc.ChunkType
				if piece.ChunkType == "" {
					piece.ChunkType = models.ChunkSemantic
				}
				piece.ChunkIndex = next
				next++
				chunks = append(chunks, piece)
			}
		default:
			// Tabular and markup records are never re-chunked.
			text := strings.TrimSpace(pc.Text)
			if text == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Filename:     pc.Filename,
				ChunkIndex:   next,
				Text:         text,
				PageNumber:   pc.Page,
				SectionTitle: pc.TagPath,
				ChunkType:    pc.ChunkType,
			})
			next++
		}
	}
	return chunks
}

// IsStructured reports whether the text matches at least two distinct
// structure header families.
func IsStructured(text string) bool {
	matched := 0
	for _, re := range structureFamilies {
		if re.MatchString(text) {
			matched++
			if matched >= 2 {
				return true
			}
		}
	}
	return false
}

func (ck *Chunker) splitText(text string) []models.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if IsStructured(text) {
		return ck.splitStructured(text)
	}
	var chunks []models.Chunk
	for _, piece := range ck.splitRecursive(text, splitSeparators) {
		piece = strings.TrimSpace(piece)
		if len(piece) < minChunkChars {
			continue
		}
		chunks = append(chunks, models.Chunk{Text: piece})
	}
	return chunks
}

// splitRecursive is the unstructured strategy: split on the coarsest
// separator that produces pieces, merge adjacent pieces back up to the
// chunk size, and recurse into oversized pieces with finer separators.
func (ck *Chunker) splitRecursive(text string, separators []string) []string {
	if len(text) <= ck.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardSplit(text, ck.chunkSize, ck.overlap)
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		return hardSplit(text, ck.chunkSize, ck.overlap)
	}
	parts = strings.Split(text, sep)
	if len(parts) == 1 {
		return ck.splitRecursive(text, rest)
	}

	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		piece := part
		if sep == "." || sep == "!" || sep == "?" {
			piece = part + sep
		}
		if len(piece) > ck.chunkSize {
			flush()
			out = append(out, ck.splitRecursive(piece, rest)...)
			continue
		}
		joined := buf.Len() + len(sep) + len(piece)
		if buf.Len() > 0 && joined > ck.chunkSize {
			flush()
			// carry overlap from the end of the previous piece
			if ck.overlap > 0 && len(out) > 0 {
				prev := out[len(out)-1]
				tail := overlapTail(prev, ck.overlap)
				if tail != "" {
					buf.WriteString(tail)
					buf.WriteString(sep)
				}
			}
		}
		if buf.Len() > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(piece)
	}
	flush()
	return out
}

// splitStructured is the line scanner: section headers open a new tagged
// buffer; oversized buffers break at the best break point and keep a tail
// of overlap/100 lines.
func (ck *Chunker) splitStructured(text string) []models.Chunk {
	lines := strings.Split(text, "\n")

	var chunks []models.Chunk
	var buf []string
	var section models.Chunk

	overlapLines := ck.overlap / 100

	emit := func(upto int) {
		body := strings.TrimSpace(strings.Join(buf[:upto], "\n"))
		if len(body) >= minChunkChars {
			c := section
			c.Text = body
			chunks = append(chunks, c)
		}
		// retain the overlap tail plus everything past the break point;
		// dropping at least one line keeps oversized buffers shrinking
		tailFrom := upto - overlapLines
		if tailFrom < 1 {
			tailFrom = 1
		}
		if tailFrom > upto {
			tailFrom = upto
		}
		rest := append([]string(nil), buf[upto:]...)
		buf = append(buf[:0], buf[tailFrom:upto]...)
		buf = append(buf, rest...)
	}

	for _, line := range lines {
		if st, num, title, ok := matchHeader(line); ok {
			emit(len(buf))
			buf = buf[:0]
			section = models.Chunk{
				SectionType:   st,
				SectionNumber: num,
				SectionTitle:  title,
			}
			buf = append(buf, line)
			continue
		}

		buf = append(buf, line)
		if lineLen(buf) > ck.chunkSize && len(buf) > 1 {
			emit(bestBreak(buf))
		}
	}
	emit(len(buf))
	return chunks
}

func matchHeader(line string) (sectionType, number, title string, ok bool) {
	if m := headerLineRe.FindStringSubmatch(line); m != nil {
		return strings.ToLower(m[1]), m[2], strings.TrimSpace(m[3]), true
	}
	if m := numberedLineRe.FindStringSubmatch(line); m != nil {
		return "numbered", m[1], strings.TrimSpace(m[2]), true
	}
	return "", "", "", false
}

func lineLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}

// bestBreak finds the index to cut a buffer at: the last blank line, else
// the last line ending in a sentence terminator, else the midpoint.
func bestBreak(lines []string) int {
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			return i
		}
	}
	for i := len(lines) - 1; i > 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
			return i + 1
		}
	}
	return len(lines) / 2
}

// overlapTail returns up to n trailing characters of text, preferring to
// start at a sentence boundary.
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, ".!?"); idx >= 0 && idx+1 < len(tail) {
		return strings.TrimSpace(tail[idx+1:])
	}
	return tail
}

// hardSplit cuts text into fixed windows with character overlap. Last
// resort when no separator matched.
func hardSplit(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
		if end == len(text) {
			break
		}
	}
	return out
}

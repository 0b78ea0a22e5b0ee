// Package chunker splits document text into sentence-aligned chunks.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/liliang-cn/docchat/internal/domain"
)

// DefaultChunkSize is used when a non-positive size is requested.
const DefaultChunkSize = 1000

// Split breaks text into chunks of at most maxChunkSize characters without
// ever splitting a sentence. A sentence ends at '.', '!' or '?' followed by
// whitespace; the punctuation stays with its sentence. A sentence longer than
// maxChunkSize becomes a chunk of its own. Empty input yields no chunks.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if bufLen > 0 && bufLen+1+n > maxChunkSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += n
	}
	flush()

	return chunks
}

// Sentences returns the trimmed, non-empty sentences of text in order.
func Sentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			break
		}
		if nr, _ := utf8.DecodeRuneInString(text[next:]); !unicode.IsSpace(nr) {
			continue
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			sentences = append(sentences, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Chunks splits text and tags each segment with its document and owner.
func Chunks(doc *domain.Document, text string, maxChunkSize int) []domain.Chunk {
	parts := Split(text, maxChunkSize)
	chunks := make([]domain.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = domain.Chunk{
			Index:      i,
			Text:       part,
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
		}
	}
	return chunks
}

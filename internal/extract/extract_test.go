package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/liliang-cn/docchat/internal/blobstore"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"notes.md", MimeMarkdown},
		{"README.MARKDOWN", MimeMarkdown},
		{"a.txt", MimePlain},
		{"guide.adoc", "text/asciidoc"},
		{"paper.pdf", "application/pdf"},
		{"noext", MimeOctetStream},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.filename))
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("text/plain"))
	assert.True(t, IsSupported("text/plain; charset=utf-8"))
	assert.True(t, IsSupported("text/markdown"))
	assert.True(t, IsSupported("application/x-markdown"))
	assert.False(t, IsSupported("application/pdf"))
	assert.False(t, IsSupported(""))
}

func TestResolveMimeType(t *testing.T) {
	assert.Equal(t, "text/markdown", ResolveMimeType("text/markdown; charset=utf-8", "x.bin", nil))
	assert.Equal(t, "application/pdf", ResolveMimeType("", "x.txt", []byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", ResolveMimeType(MimeOctetStream, "x", []byte("plain words here")))
	assert.Equal(t, MimeMarkdown, ResolveMimeType("", "x.md", nil))
}

func newExtractor(t *testing.T, files map[string]string) *Extractor {
	t.Helper()
	store, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	for path, content := range files {
		require.NoError(t, store.Put(context.Background(), path, strings.NewReader(content), ""))
	}
	return NewExtractor(store)
}

func TestExtractor_PassesThroughText(t *testing.T) {
	e := newExtractor(t, map[string]string{"A/doc1.md": "# Title\n\nA cat sat. A dog ran."})

	text, err := e.Extract(context.Background(), &domain.Document{
		ID: "doc1", StoragePath: "A/doc1.md", Filename: "doc1.md", MimeType: MimeMarkdown,
	})
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nA cat sat. A dog ran.", text)
}

func TestExtractor_UnsupportedContent(t *testing.T) {
	e := newExtractor(t, map[string]string{
		"A/paper.pdf": "%PDF-1.7\n...",
		"A/bad.txt":   "\xff\xfe\xfd",
	})

	_, err := e.Extract(context.Background(), &domain.Document{StoragePath: "A/paper.pdf", Filename: "paper.pdf", MimeType: "application/pdf"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)

	_, err = e.Extract(context.Background(), &domain.Document{StoragePath: "A/bad.txt", Filename: "bad.txt", MimeType: "text/plain"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
}

func TestExtractor_MissingBlob(t *testing.T) {
	e := newExtractor(t, nil)

	_, err := e.Extract(context.Background(), &domain.Document{StoragePath: "A/missing.txt", MimeType: "text/plain"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

// Package extract turns a stored document into plain text.
package extract

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/liliang-cn/docchat/internal/blobstore"
	"github.com/liliang-cn/docchat/internal/domain"
)

const (
	MimeMarkdown    = "text/markdown"
	MimePlain       = "text/plain"
	MimeOctetStream = "application/octet-stream"
)

// DetectMimeType guesses a MIME type from the filename extension.
func DetectMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return MimeMarkdown
	case ".txt", ".text":
		return MimePlain
	case ".adoc", ".asciidoc":
		return "text/asciidoc"
	case "":
		return MimeOctetStream
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t)
	}
	return MimeOctetStream
}

// IsSupported reports whether content of this type is passed through as
// text. Other formats are converted outside this service.
func IsSupported(mimeType string) bool {
	mt := baseType(mimeType)
	return strings.HasPrefix(mt, "text/") || strings.Contains(mt, "markdown")
}

// ResolveMimeType picks the declared type, then the sniffed type, then the
// extension-based guess.
func ResolveMimeType(declared, filename string, data []byte) string {
	if mt := baseType(declared); mt != "" && mt != MimeOctetStream {
		return mt
	}
	if len(data) > 0 {
		if mt := baseType(mimetype.Detect(data).String()); mt != MimeOctetStream {
			return mt
		}
	}
	return DetectMimeType(filename)
}

func baseType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(t)
}

// Extractor downloads a document and returns its text.
type Extractor struct {
	blobs blobstore.Store
}

// NewExtractor creates an extractor reading from blobs.
func NewExtractor(blobs blobstore.Store) *Extractor {
	return &Extractor{blobs: blobs}
}

// Extract returns the text of doc. Non-text formats fail with an
// unsupported content type error.
func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	const op = "extract"

	data, err := e.blobs.Download(ctx, doc.StoragePath)
	if err != nil {
		return "", domain.NewError(domain.KindStorage, op, "download "+doc.StoragePath, err)
	}

	mt := ResolveMimeType(doc.MimeType, doc.Filename, data)
	if !IsSupported(mt) {
		return "", domain.NewError(domain.KindUnsupportedContentType, op, mt, nil)
	}
	if !utf8.Valid(data) {
		return "", domain.NewError(domain.KindUnsupportedContentType, op, mt+" is not valid UTF-8", nil)
	}
	return string(data), nil
}

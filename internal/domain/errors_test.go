package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(KindIndexWrite, "upsert", "status 503", errors.New("boom"))

	assert.True(t, errors.Is(err, ErrIndexWrite))
	assert.False(t, errors.Is(err, ErrIndexQuery))

	wrapped := fmt.Errorf("ingest doc1: %w", err)
	assert.True(t, errors.Is(wrapped, ErrIndexWrite))
	assert.Equal(t, KindIndexWrite, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"sentinel", ErrDocumentNotFound, "document not found"},
		{"op and cause", NewError(KindEmbeddingService, "embed", "request failed", errors.New("timeout")), "embed: request failed: timeout"},
		{"op only", NewError(KindDelegation, "forward chat", "status 500", nil), "forward chat: status 500"},
		{"kind fallback", &Error{Kind: KindStorage}, "storage_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := NewError(KindUnsupportedContentType, "extract", "application/pdf", nil)

	err := Wrap(KindStorage, "ingest", fmt.Errorf("read: %w", inner))
	assert.Equal(t, KindUnsupportedContentType, KindOf(err))

	err = Wrap(KindStorage, "ingest", errors.New("disk full"))
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Nil(t, Wrap(KindStorage, "ingest", nil))
}

func TestKindOf_Untyped(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

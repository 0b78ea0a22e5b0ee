package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindDocumentNotFound       Kind = "document_not_found"
	KindSessionNotFound        Kind = "session_not_found"
	KindUnsupportedContentType Kind = "unsupported_content_type"
	KindEmbeddingService       Kind = "embedding_service_error"
	KindIndexWrite             Kind = "index_write_error"
	KindIndexQuery             Kind = "index_query_error"
	KindIndexDelete            Kind = "index_delete_error"
	KindCompletionService      Kind = "completion_service_error"
	KindDelegation             Kind = "delegation_error"
	KindInvalidRequest         Kind = "invalid_request"
	KindStorage                Kind = "storage_error"
)

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "operation failed"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the package
// sentinels match any wrapped error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrDocumentNotFound       = &Error{Kind: KindDocumentNotFound, Message: "document not found"}
	ErrSessionNotFound        = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrUnsupportedContentType = &Error{Kind: KindUnsupportedContentType, Message: "unsupported content type"}
	ErrEmbeddingService       = &Error{Kind: KindEmbeddingService, Message: "embedding service failed"}
	ErrIndexWrite             = &Error{Kind: KindIndexWrite, Message: "vector index write failed"}
	ErrIndexQuery             = &Error{Kind: KindIndexQuery, Message: "vector index query failed"}
	ErrIndexDelete            = &Error{Kind: KindIndexDelete, Message: "vector index delete failed"}
	ErrCompletionService      = &Error{Kind: KindCompletionService, Message: "completion service failed"}
	ErrDelegation             = &Error{Kind: KindDelegation, Message: "delegated workflow failed"}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrStorage                = &Error{Kind: KindStorage, Message: "storage failed"}
)

// NewError builds a typed error of the given kind.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Wrap tags err with kind unless it already carries a kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

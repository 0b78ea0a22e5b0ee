// Package delegation forwards chat and ingestion work to an external
// workflow when one is configured.
package delegation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liliang-cn/docchat/internal/domain"
	"go.uber.org/zap"
)

// Kind names a delegable operation.
type Kind string

const (
	KindChat   Kind = "chat"
	KindIngest Kind = "ingest"
)

// Resolver returns the webhook URL for kind, or "" when not delegated. It is
// consulted on every call.
type Resolver func(kind Kind) string

// ChatRequest is the payload forwarded for a chat turn.
type ChatRequest struct {
	Message   string `json:"message"`
	OwnerID   string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// ChatResult is the workflow's answer.
type ChatResult struct {
	Response string          `json:"response"`
	Sources  []domain.Source `json:"sources"`
}

// IngestRequest is the payload forwarded for an ingestion.
type IngestRequest struct {
	DocumentID string `json:"documentId"`
	FilePath   string `json:"filePath"`
	Filename   string `json:"filename"`
	OwnerID    string `json:"userId"`
}

// IngestAck is the workflow's acknowledgment. VectorIDs and Chunks are set
// only by workflows that finish synchronously.
type IngestAck struct {
	Message   string   `json:"message"`
	VectorIDs []string `json:"vectorIds"`
	Chunks    int      `json:"chunks"`
}

// Gate decides per call whether work is delegated and performs the forward.
// It never retries and never falls back to local processing.
type Gate struct {
	resolve Resolver
	http    *http.Client
	logger  *zap.Logger
}

// NewGate creates a gate. A nil resolver disables delegation.
func NewGate(resolve Resolver, timeout time.Duration, logger *zap.Logger) *Gate {
	if resolve == nil {
		resolve = func(Kind) string { return "" }
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		resolve: resolve,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("delegation"),
	}
}

// IsDelegated reports whether kind is currently routed to a workflow.
func (g *Gate) IsDelegated(kind Kind) bool {
	return strings.TrimSpace(g.resolve(kind)) != ""
}

// ForwardChat sends a chat turn to the chat workflow.
func (g *Gate) ForwardChat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	const op = "forward chat"
	var out ChatResult
	if err := g.post(ctx, op, KindChat, req, &out); err != nil {
		return nil, err
	}
	if out.Response == "" {
		return nil, domain.NewError(domain.KindDelegation, op, "response missing answer text", nil)
	}
	if out.Sources == nil {
		out.Sources = []domain.Source{}
	}
	return &out, nil
}

// ForwardIngest sends an ingestion request to the ingest workflow.
func (g *Gate) ForwardIngest(ctx context.Context, req IngestRequest) (*IngestAck, error) {
	const op = "forward ingest"
	var out IngestAck
	if err := g.post(ctx, op, KindIngest, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gate) post(ctx context.Context, op string, kind Kind, body, out any) error {
	url := strings.TrimSpace(g.resolve(kind))
	if url == "" {
		return domain.NewError(domain.KindDelegation, op, "no workflow configured", nil)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.NewError(domain.KindDelegation, op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.NewError(domain.KindDelegation, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.logger.Debug("Forwarding to workflow", zap.String("kind", string(kind)))
	resp, err := g.http.Do(req)
	if err != nil {
		return domain.NewError(domain.KindDelegation, op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewError(domain.KindDelegation, op, fmt.Sprintf("workflow returned status %d", resp.StatusCode), nil)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if kind == KindIngest {
			return nil
		}
		return domain.NewError(domain.KindDelegation, op, "empty response", nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewError(domain.KindDelegation, op, "malformed response", err)
	}
	return nil
}

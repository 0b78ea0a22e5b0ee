package service

import (
	"context"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/retry"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 10

	basePrompt    = "You are a helpful AI assistant. Use the provided context to answer questions."
	contextPrompt = "You are a helpful AI assistant. Use the following context from the user's documents to answer their questions. If the answer cannot be found in the context, say so.\n\nContext:\n"
)

// Answer is a generated reply plus the chunks it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.Source
}

// AnswerGenerator produces grounded answers from retrieval and history.
type AnswerGenerator struct {
	retriever       *Retriever
	sessions        SessionStore
	completer       Completer
	historyLimit    int
	completionRetry retry.Policy
	logger          *zap.Logger
}

// NewAnswerGenerator creates a new answer generator
func NewAnswerGenerator(
	retriever *Retriever,
	sessions SessionStore,
	completer Completer,
	historyLimit int,
	completionRetry retry.Policy,
	logger *zap.Logger,
) *AnswerGenerator {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerGenerator{
		retriever:       retriever,
		sessions:        sessions,
		completer:       completer,
		historyLimit:    historyLimit,
		completionRetry: completionRetry,
		logger:          logger.Named("answer"),
	}
}

// Answer retrieves context for query and completes over the session's recent
// history. The caller persists the user turn first; history is used as read.
func (g *AnswerGenerator) Answer(ctx context.Context, query, ownerID, sessionID string) (*Answer, error) {
	retrieval, err := g.retriever.Retrieve(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}

	history := []*domain.Message{}
	if sessionID != "" {
		history, err = g.sessions.RecentMessages(ctx, sessionID, g.historyLimit)
		if err != nil {
			return nil, err
		}
	}

	prompt := BuildPrompt(history, retrieval.Context)
	text, err := retry.Do(ctx, g.completionRetry, func(ctx context.Context) (string, error) {
		return g.completer.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindCompletionService, "complete", err)
	}

	g.logger.Debug("Answer generated",
		zap.String("session_id", sessionID),
		zap.Int("history", len(history)),
		zap.Int("sources", len(retrieval.Sources)))
	return &Answer{Text: text, Sources: retrieval.Sources}, nil
}

// BuildPrompt places one system message first, then history in order.
// System messages inside history are skipped.
func BuildPrompt(history []*domain.Message, retrieved string) []domain.PromptMessage {
	system := basePrompt
	if retrieved != "" {
		system = contextPrompt + retrieved
	}

	prompt := make([]domain.PromptMessage, 0, len(history)+1)
	prompt = append(prompt, domain.PromptMessage{Role: domain.RoleSystem, Content: system})
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		prompt = append(prompt, domain.PromptMessage{Role: m.Role, Content: m.Content})
	}
	return prompt
}

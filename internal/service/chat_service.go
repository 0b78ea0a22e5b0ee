package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/docchat/internal/delegation"
	"github.com/liliang-cn/docchat/internal/domain"
	"go.uber.org/zap"
)

const sessionTitleLength = 60

// ChatService runs chat turns against the owner's documents
type ChatService struct {
	sessions SessionStore
	answers  *AnswerGenerator
	gate     Delegator
	logger   *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(sessions SessionStore, answers *AnswerGenerator, gate Delegator, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessions: sessions,
		answers:  answers,
		gate:     gate,
		logger:   logger.Named("chat"),
	}
}

// AnswerChatTurn persists the user message, answers it and persists the
// reply. An empty sessionID starts a new session.
func (s *ChatService) AnswerChatTurn(ctx context.Context, query, ownerID, sessionID string) (*domain.ChatResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "chat", "message is required", nil)
	}
	if ownerID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "chat", "owner is required", nil)
	}

	session, err := s.resolveSession(ctx, query, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("session_id", session.ID), zap.String("owner_id", ownerID))

	if err := s.sessions.CreateMessage(ctx, &domain.Message{
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   query,
	}); err != nil {
		return nil, err
	}

	var text string
	var sources []domain.Source
	if s.gate != nil && s.gate.IsDelegated(delegation.KindChat) {
		result, err := s.gate.ForwardChat(ctx, delegation.ChatRequest{
			Message:   query,
			OwnerID:   ownerID,
			SessionID: session.ID,
		})
		if err != nil {
			log.Error("Delegated chat failed", zap.Error(err))
			return nil, err
		}
		text, sources = result.Response, result.Sources
	} else {
		answer, err := s.answers.Answer(ctx, query, ownerID, session.ID)
		if err != nil {
			log.Error("Chat turn failed", zap.Error(err))
			return nil, err
		}
		text, sources = answer.Text, answer.Sources
	}
	if sources == nil {
		sources = []domain.Source{}
	}

	if err := s.sessions.CreateMessage(ctx, &domain.Message{
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   text,
		Sources:   sources,
	}); err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		return nil, err
	}

	return &domain.ChatResponse{
		SessionID: session.ID,
		Response:  text,
		Sources:   sources,
	}, nil
}

func (s *ChatService) resolveSession(ctx context.Context, query, ownerID, sessionID string) (*domain.Session, error) {
	if sessionID != "" {
		session, err := s.sessions.Get(domain.WithOwner(ctx, ownerID), sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, domain.NewError(domain.KindSessionNotFound, "chat", "session not found: "+sessionID, nil)
		}
		return session, nil
	}

	session := &domain.Session{OwnerID: ownerID, Title: sessionTitle(query)}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func sessionTitle(query string) string {
	title := strings.TrimSpace(query)
	if utf8.RuneCountInString(title) <= sessionTitleLength {
		return title
	}
	return strings.TrimSpace(string([]rune(title)[:sessionTitleLength]))
}

// ListSessions returns the owner's sessions, most recently active first
func (s *ChatService) ListSessions(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	return s.sessions.List(ctx, ownerID)
}

// ListMessages returns a session's messages if ownerID owns it
func (s *ChatService) ListMessages(ctx context.Context, ownerID, sessionID string) ([]*domain.Message, error) {
	session, err := s.sessions.Get(domain.WithOwner(ctx, ownerID), sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.NewError(domain.KindSessionNotFound, "list messages", "session not found: "+sessionID, nil)
	}
	return s.sessions.GetMessages(ctx, sessionID)
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/docchat/internal/domain"
)

// SessionRepository handles chat session and message persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, owner_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.OwnerID, session.Title, session.CreatedAt, session.UpdatedAt)

	return storageErr("create session", err)
}

// Get retrieves a session by ID, scoped to the owner in ctx.
// It returns nil, nil when no visible session exists.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	session := &domain.Session{}
	scope, args := ownerScope(ctx, "owner_id", []any{id})

	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = ?`+scope, args...,
	).Scan(&session.ID, &session.OwnerID, &session.Title, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}

	return session, nil
}

// List retrieves the owner's sessions, most recently active first
func (r *SessionRepository) List(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE owner_id = ?
		ORDER BY updated_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	sessions := []*domain.Session{}
	for rows.Next() {
		session := &domain.Session{}
		if err := rows.Scan(&session.ID, &session.OwnerID, &session.Title,
			&session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, storageErr("list sessions", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, storageErr("list sessions", rows.Err())
}

// Touch updates a session's updated_at timestamp
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return storageErr("touch session", err)
}

// CreateMessage creates a new message
func (r *SessionRepository) CreateMessage(ctx context.Context, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now().UTC()

	var sources any
	if len(message.Sources) > 0 {
		sourcesJSON, _ := json.Marshal(message.Sources)
		sources = string(sourcesJSON)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, message.ID, message.SessionID, string(message.Role), message.Content,
		sources, message.CreatedAt)

	return storageErr("create message", err)
}

// GetMessages retrieves all messages for a session, oldest first
func (r *SessionRepository) GetMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, storageErr("get messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// RecentMessages returns the latest limit non-system messages of a session,
// oldest first.
func (r *SessionRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM chat_messages WHERE session_id = ? AND role != ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sessionID, string(domain.RoleSystem), limit)
	if err != nil {
		return nil, storageErr("recent messages", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	messages := []*domain.Message{}
	for rows.Next() {
		message := &domain.Message{}
		var sourcesJSON sql.NullString

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &sourcesJSON, &message.CreatedAt); err != nil {
			return nil, storageErr("scan message", err)
		}

		if sourcesJSON.Valid && sourcesJSON.String != "" {
			json.Unmarshal([]byte(sourcesJSON.String), &message.Sources)
		}
		messages = append(messages, message)
	}

	return messages, storageErr("scan message", rows.Err())
}

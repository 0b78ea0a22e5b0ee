package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/pgvector/pgvector-go"
)

const defaultPGVectorTable = "vector_entries"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVector is an Index stored in a PostgreSQL table using the pgvector
// extension. Scores are cosine similarity.
type PGVector struct {
	cfg       PGVectorConfig
	namespace string

	mu sync.Mutex
	db *sql.DB
}

// NewPGVector validates cfg. The connection and schema are set up on first
// use.
func NewPGVector(cfg PGVectorConfig, namespace string) (*PGVector, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("pgvector dsn required")
	}
	if cfg.Table == "" {
		cfg.Table = defaultPGVectorTable
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", cfg.Table)
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("invalid pgvector dimension %d", cfg.Dimension)
	}
	return &PGVector{cfg: cfg, namespace: namespace}, nil
}

func (s *PGVector) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("postgres", s.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	for _, stmt := range schemaStatements(s.cfg.Table, s.cfg.Dimension) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("pgvector schema: %w", err)
		}
	}
	s.db = db
	return s.db, nil
}

func schemaStatements(table string, dimension int) []string {
	column := "vector"
	if dimension > 0 {
		column = fmt.Sprintf("vector(%d)", dimension)
	}
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding %s NOT NULL,
			PRIMARY KEY (namespace, id)
		)`, table, column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s (namespace, owner_id)`, table, table),
	}
}

func (s *PGVector) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	const op = "pgvector upsert"
	if len(entries) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return domain.NewError(domain.KindIndexWrite, op, "connect", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewError(domain.KindIndexWrite, op, "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (namespace, id, document_id, owner_id, filename, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace, id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			owner_id = EXCLUDED.owner_id,
			filename = EXCLUDED.filename,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`, s.cfg.Table))
	if err != nil {
		return domain.NewError(domain.KindIndexWrite, op, "prepare", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		m := e.Metadata
		if _, err := stmt.ExecContext(ctx, s.namespace, e.ID, m.DocumentID, m.OwnerID,
			m.Filename, m.ChunkIndex, m.Text, pgvector.NewVector(e.Values)); err != nil {
			return domain.NewError(domain.KindIndexWrite, op, "insert "+e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewError(domain.KindIndexWrite, op, "commit", err)
	}
	return nil
}

func (s *PGVector) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	const op = "pgvector query"
	if err := validateQuery(op, vector, topK, filter); err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindIndexQuery, op, "connect", err)
	}

	query, args := s.queryStatement(pgvector.NewVector(vector), topK, filter)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindIndexQuery, op, "execute", err)
	}
	defer rows.Close()

	var matches []domain.VectorMatch
	for rows.Next() {
		var (
			m     domain.VectorMatch
			score sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.Metadata.DocumentID, &m.Metadata.OwnerID, &m.Metadata.Filename,
			&m.Metadata.ChunkIndex, &m.Metadata.Text, &score); err != nil {
			return nil, domain.NewError(domain.KindIndexQuery, op, "scan", err)
		}
		if score.Valid {
			v := score.Float64
			m.Score = &v
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.KindIndexQuery, op, "iterate", err)
	}
	return matches, nil
}

func (s *PGVector) queryStatement(vec pgvector.Vector, topK int, filter domain.VectorFilter) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id, document_id, owner_id, filename, chunk_index, content, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE namespace = $2 AND owner_id = $3`, s.cfg.Table)
	args := []any{vec, s.namespace, filter.OwnerID}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		fmt.Fprintf(&b, ` AND document_id = $%d`, len(args))
	}
	args = append(args, topK)
	fmt.Fprintf(&b, `
		ORDER BY embedding <=> $1
		LIMIT $%d`, len(args))
	return b.String(), args
}

func (s *PGVector) DeleteMany(ctx context.Context, ids []string) error {
	const op = "pgvector delete"
	if len(ids) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return domain.NewError(domain.KindIndexDelete, op, "connect", err)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)`, s.cfg.Table)
	if _, err := db.ExecContext(ctx, query, s.namespace, pq.Array(ids)); err != nil {
		return domain.NewError(domain.KindIndexDelete, op, "execute", err)
	}
	return nil
}

// Close releases the connection pool, if one was opened.
func (s *PGVector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

type postgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) DocumentStore {
	return &postgresDocumentStore{db: db}
}

func EnsureDocumentSchema(ctx context.Context, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS bot_documents (
			name       TEXT PRIMARY KEY,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create bot_documents: %w", err)
	}
	return nil
}

func (s *postgresDocumentStore) Load(ctx context.Context, name string, v any) (bool, error) {
	query := `SELECT body FROM bot_documents WHERE name = $1`

	var body []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&body)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("load document %s: %w", name, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode document %s: %w", name, err)
	}
	return true, nil
}

func (s *postgresDocumentStore) Save(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}

	query := `
		INSERT INTO bot_documents (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, name, body); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("save document %s: %w", name, err)
	}
	return nil
}

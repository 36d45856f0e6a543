package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupark12/docshift/models"
)

const documentColumns = `id, original_name, original_format, converted_format, status,
COALESCE(content, ''), COALESCE(enhanced_content, ''), COALESCE(download_url, ''), COALESCE(error, ''),
created_at, updated_at`

// PostgresStore keeps documents in PostgreSQL. Transitions are conditional
// updates on status = 'pending', so the database enforces monotonicity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a pending document.
func (s *PostgresStore) Create(ctx context.Context, originalName string, from, to models.Format) (*models.Document, error) {
	query := `
INSERT INTO documents (original_name, original_format, converted_format, status)
VALUES ($1, $2, $3, 'pending')
RETURNING ` + documentColumns

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, originalName, string(from), string(to)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

// Get fetches a document by id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return doc, nil
}

const completeQuery = `
UPDATE documents
SET status = 'completed',
    download_url = $2,
    content = $3,
    enhanced_content = $4,
    updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + documentColumns

// List returns documents ordered by id, filtered by status when it is not empty.
func (s *PostgresStore) List(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
WHERE $1 = '' OR status = $1
ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// MarkCompleted moves a pending document to completed.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id int64, c models.Completion) (*models.Document, error) {
	if c.DownloadURL == "" {
		return nil, fmt.Errorf("document %d: completion without download url: %w", id, ErrInvalidTransition)
	}

	return s.transition(ctx, id, completeQuery, c.DownloadURL, c.Content, c.EnhancedContent)
}

// Complete stores the payload and marks the document completed in one transaction.
func (s *PostgresStore) Complete(ctx context.Context, id int64, c models.Completion, payload []byte) (*models.Document, error) {
	if c.DownloadURL == "" {
		return nil, fmt.Errorf("document %d: completion without download url: %w", id, ErrInvalidTransition)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, err := scanDocument(tx.QueryRow(ctx, completeQuery, id, c.DownloadURL, c.Content, c.EnhancedContent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = tx.Rollback(ctx)
			return nil, s.notPending(ctx, id)
		}
		return nil, fmt.Errorf("failed to update document %d: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO document_payloads (document_id, payload)
VALUES ($1, $2)
ON CONFLICT (document_id) DO NOTHING`, id, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to store payload for document %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("document %d: %w", id, ErrPayloadExists)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit document %d: %w", id, err)
	}
	return doc, nil
}

// MarkError moves a pending document to error with the given message.
func (s *PostgresStore) MarkError(ctx context.Context, id int64, message string) (*models.Document, error) {
	if message == "" {
		return nil, fmt.Errorf("document %d: error without message: %w", id, ErrInvalidTransition)
	}

	query := `
UPDATE documents
SET status = 'error',
    error = $2,
    updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + documentColumns

	return s.transition(ctx, id, query, message)
}

func (s *PostgresStore) transition(ctx context.Context, id int64, query string, args ...any) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, query, append([]any{id}, args...)...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update document %d: %w", id, err)
	}

	return nil, s.notPending(ctx, id)
}

// notPending tells unknown ids apart from terminal ones after no pending row matched.
func (s *PostgresStore) notPending(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("document %d is %s: %w", id, current.Status, ErrAlreadyTerminal)
}

// StorePayload associates the converted bytes with a document.
func (s *PostgresStore) StorePayload(ctx context.Context, id int64, payload []byte) error {
	query := `
INSERT INTO document_payloads (document_id, payload)
SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM documents WHERE id = $1)
ON CONFLICT (document_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, id, payload)
	if err != nil {
		return fmt.Errorf("failed to store payload for document %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("document %d: %w", id, ErrPayloadExists)
}

// GetPayload returns the converted bytes for a document.
func (s *PostgresStore) GetPayload(ctx context.Context, id int64) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM document_payloads WHERE document_id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payload for document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payload for document %d: %w", id, err)
	}
	return payload, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc             models.Document
		originalFormat  string
		convertedFormat string
		status          string
	)
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalName,
		&originalFormat,
		&convertedFormat,
		&status,
		&doc.Content,
		&doc.EnhancedContent,
		&doc.DownloadURL,
		&doc.Error,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.OriginalFormat = models.Format(originalFormat)
	doc.ConvertedFormat = models.Format(convertedFormat)
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}

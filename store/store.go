// Package store keeps Document records and their converted payloads.
package store

import (
	"context"
	"errors"

	"github.com/jupark12/docshift/models"
)

var (
	// ErrNotFound is returned for lookups and transitions on unknown ids.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyTerminal is returned when a transition targets a completed or errored document.
	ErrAlreadyTerminal = errors.New("document already in terminal state")
	// ErrInvalidTransition is returned when a transition lacks its required field.
	ErrInvalidTransition = errors.New("invalid document transition")
	// ErrPayloadExists is returned when a payload is stored twice for the same document.
	ErrPayloadExists = errors.New("payload already stored")
)

// Store is the Document repository. Status changes only through MarkCompleted,
// Complete and MarkError, which all require the document to still be pending.
type Store interface {
	Create(ctx context.Context, originalName string, from, to models.Format) (*models.Document, error)
	Get(ctx context.Context, id int64) (*models.Document, error)
	// List returns documents ordered by id. An empty status matches every document.
	List(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error)
	MarkCompleted(ctx context.Context, id int64, c models.Completion) (*models.Document, error)
	// Complete stores the payload and marks the document completed as one
	// step. On failure neither change is visible.
	Complete(ctx context.Context, id int64, c models.Completion, payload []byte) (*models.Document, error)
	MarkError(ctx context.Context, id int64, message string) (*models.Document, error)
	StorePayload(ctx context.Context, id int64, payload []byte) error
	GetPayload(ctx context.Context, id int64) ([]byte, error)
}

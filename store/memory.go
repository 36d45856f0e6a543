package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jupark12/docshift/models"
)

// MemoryStore keeps documents for the lifetime of the process.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[int64]*models.Document
	payloads  map[int64][]byte
	nextID    int64
	now       func() time.Time
}

// NewMemoryStore creates a new, empty MemoryStore. Ids start at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[int64]*models.Document),
		payloads:  make(map[int64][]byte),
		nextID:    1,
		now:       time.Now,
	}
}

// Create adds a pending document. It never fails.
func (s *MemoryStore) Create(_ context.Context, originalName string, from, to models.Format) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	doc := &models.Document{
		ID:              s.nextID,
		OriginalName:    originalName,
		OriginalFormat:  from,
		ConvertedFormat: to,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.nextID++
	s.documents[doc.ID] = doc

	out := *doc
	return &out, nil
}

// Get retrieves a copy of the document by id.
func (s *MemoryStore) Get(_ context.Context, id int64) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[id]
	if !exists {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}

	out := *doc
	return &out, nil
}

// List returns copies of the documents with the given status, or of every
// document when status is empty.
func (s *MemoryStore) List(_ context.Context, status models.DocumentStatus) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		if status != "" && doc.Status != status {
			continue
		}
		out := *doc
		docs = append(docs, &out)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// MarkCompleted moves a pending document to completed.
func (s *MemoryStore) MarkCompleted(_ context.Context, id int64, c models.Completion) (*models.Document, error) {
	if c.DownloadURL == "" {
		return nil, fmt.Errorf("document %d: completion without download url: %w", id, ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, completeWith(c))
}

// Complete stores the payload and moves the document to completed under one lock.
func (s *MemoryStore) Complete(_ context.Context, id int64, c models.Completion, payload []byte) (*models.Document, error) {
	if c.DownloadURL == "" {
		return nil, fmt.Errorf("document %d: completion without download url: %w", id, ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payloads[id]; exists {
		return nil, fmt.Errorf("document %d: %w", id, ErrPayloadExists)
	}
	doc, err := s.transition(id, completeWith(c))
	if err != nil {
		return nil, err
	}
	s.payloads[id] = append([]byte(nil), payload...)
	return doc, nil
}

func completeWith(c models.Completion) func(*models.Document) {
	return func(doc *models.Document) {
		doc.Status = models.StatusCompleted
		doc.DownloadURL = c.DownloadURL
		doc.Content = c.Content
		doc.EnhancedContent = c.EnhancedContent
	}
}

// MarkError moves a pending document to error with the given message.
func (s *MemoryStore) MarkError(_ context.Context, id int64, message string) (*models.Document, error) {
	if message == "" {
		return nil, fmt.Errorf("document %d: error without message: %w", id, ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, func(doc *models.Document) {
		doc.Status = models.StatusError
		doc.Error = message
	})
}

// transition replaces the stored record with an updated copy so concurrent
// readers only ever see the record before or after the change. The caller
// holds s.mu.
func (s *MemoryStore) transition(id int64, apply func(*models.Document)) (*models.Document, error) {
	current, exists := s.documents[id]
	if !exists {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("document %d is %s: %w", id, current.Status, ErrAlreadyTerminal)
	}

	next := *current
	apply(&next)
	next.UpdatedAt = s.now()
	s.documents[id] = &next

	out := next
	return &out, nil
}

// StorePayload associates the converted bytes with a document.
func (s *MemoryStore) StorePayload(_ context.Context, id int64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[id]; !exists {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if _, exists := s.payloads[id]; exists {
		return fmt.Errorf("document %d: %w", id, ErrPayloadExists)
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.payloads[id] = buf
	return nil
}

// GetPayload returns the converted bytes for a document.
func (s *MemoryStore) GetPayload(_ context.Context, id int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, exists := s.payloads[id]
	if !exists {
		return nil, fmt.Errorf("payload for document %d: %w", id, ErrNotFound)
	}
	return payload, nil
}

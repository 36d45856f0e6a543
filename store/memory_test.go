package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/docshift/models"
)

func TestMemoryStoreCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Create(ctx, "report.pdf", models.FormatPDF, models.FormatDOCX)
	require.NoError(t, err)
	second, err := s.Create(ctx, "notes.docx", models.FormatDOCX, models.FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Empty(t, first.DownloadURL)
	assert.Empty(t, first.Error)
	assert.Empty(t, first.Content)
	assert.Empty(t, first.EnhancedContent)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetPayload(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, "report.pdf", models.FormatPDF, models.FormatDOCX)
	require.NoError(t, err)
	doc.Status = models.StatusCompleted

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestMemoryStoreMarkCompleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc, err := s.Create(ctx, "report.pdf", models.FormatPDF, models.FormatDOCX)
	require.NoError(t, err)

	done, err := s.MarkCompleted(ctx, doc.ID, models.Completion{
		DownloadURL:     "/api/download/1",
		Content:         "Hello world",
		EnhancedContent: "Hello, world.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "/api/download/1", done.DownloadURL)
	assert.Equal(t, "Hello world", done.Content)
	assert.Equal(t, "Hello, world.", done.EnhancedContent)
	assert.Empty(t, done.Error)
	assert.False(t, done.UpdatedAt.Before(done.CreatedAt))
}

func TestMemoryStoreTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	completion := models.Completion{DownloadURL: "/api/download/1"}

	t.Run("completed", func(t *testing.T) {
		s := NewMemoryStore()
		doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)
		_, err := s.MarkCompleted(ctx, doc.ID, completion)
		require.NoError(t, err)

		_, err = s.MarkError(ctx, doc.ID, "late failure")
		require.ErrorIs(t, err, ErrAlreadyTerminal)
		_, err = s.MarkCompleted(ctx, doc.ID, completion)
		require.ErrorIs(t, err, ErrAlreadyTerminal)

		got, _ := s.Get(ctx, doc.ID)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Empty(t, got.Error)
	})

	t.Run("error", func(t *testing.T) {
		s := NewMemoryStore()
		doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)
		_, err := s.MarkError(ctx, doc.ID, "extraction failed")
		require.NoError(t, err)

		_, err = s.MarkCompleted(ctx, doc.ID, completion)
		require.ErrorIs(t, err, ErrAlreadyTerminal)

		got, _ := s.Get(ctx, doc.ID)
		assert.Equal(t, models.StatusError, got.Status)
		assert.Equal(t, "extraction failed", got.Error)
		assert.Empty(t, got.DownloadURL)
	})
}

func TestMemoryStoreRejectsIncompleteTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)

	_, err := s.MarkCompleted(ctx, doc.ID, models.Completion{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.MarkError(ctx, doc.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.MarkError(ctx, 99, "boom")
	require.ErrorIs(t, err, ErrNotFound)

	got, _ := s.Get(ctx, doc.ID)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestMemoryStorePayload(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)

	require.ErrorIs(t, s.StorePayload(ctx, 99, []byte("x")), ErrNotFound)

	payload := []byte("converted")
	require.NoError(t, s.StorePayload(ctx, doc.ID, payload))
	payload[0] = 'X'

	got, err := s.GetPayload(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("converted"), got)

	require.ErrorIs(t, s.StorePayload(ctx, doc.ID, []byte("again")), ErrPayloadExists)
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)
			if err == nil {
				ids <- doc.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	for id := int64(1); id <= n; id++ {
		assert.True(t, seen[id], "id %d missing", id)
	}
}

func TestMemoryStoreComplete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)

	payload := []byte("converted")
	done, err := s.Complete(ctx, doc.ID, models.Completion{DownloadURL: "/api/download/1", Content: "a"}, payload)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	payload[0] = 'X'

	got, err := s.GetPayload(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("converted"), got)
}

func TestMemoryStoreCompleteLeavesNoPayloadOnFailure(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	t.Run("terminal document", func(t *testing.T) {
		doc, _ := s.Create(ctx, "a.pdf", models.FormatPDF, models.FormatDOCX)
		_, err := s.MarkError(ctx, doc.ID, "extraction failed")
		require.NoError(t, err)

		_, err = s.Complete(ctx, doc.ID, models.Completion{DownloadURL: "/api/download/1"}, []byte("x"))
		require.ErrorIs(t, err, ErrAlreadyTerminal)
		_, err = s.GetPayload(ctx, doc.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing download url", func(t *testing.T) {
		doc, _ := s.Create(ctx, "b.pdf", models.FormatPDF, models.FormatDOCX)

		_, err := s.Complete(ctx, doc.ID, models.Completion{}, []byte("x"))
		require.ErrorIs(t, err, ErrInvalidTransition)
		_, err = s.GetPayload(ctx, doc.ID)
		require.ErrorIs(t, err, ErrNotFound)

		got, _ := s.Get(ctx, doc.ID)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("payload already stored", func(t *testing.T) {
		doc, _ := s.Create(ctx, "c.pdf", models.FormatPDF, models.FormatDOCX)
		require.NoError(t, s.StorePayload(ctx, doc.ID, []byte("first")))

		_, err := s.Complete(ctx, doc.ID, models.Completion{DownloadURL: "/api/download/3"}, []byte("second"))
		require.ErrorIs(t, err, ErrPayloadExists)

		got, _ := s.Get(ctx, doc.ID)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("unknown document", func(t *testing.T) {
		_, err := s.Complete(ctx, 99, models.Completion{DownloadURL: "/api/download/99"}, []byte("x"))
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetPayload(ctx, 99)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, err := s.Create(ctx, name, models.FormatPDF, models.FormatDOCX)
		require.NoError(t, err)
	}
	_, err := s.MarkError(ctx, 2, "boom")
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.List(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a.pdf", pending[0].OriginalName)
	assert.Equal(t, "c.pdf", pending[1].OriginalName)

	// Listed documents are copies.
	all[0].Status = models.StatusCompleted
	got, _ := s.Get(ctx, 1)
	assert.Equal(t, models.StatusPending, got.Status)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/docshift/enhance"
	"github.com/jupark12/docshift/extract"
	"github.com/jupark12/docshift/generate"
	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/store"
)

func staticExtractor(text string) extract.Extractor {
	return extract.ExtractorFunc(func(ctx context.Context, data []byte) (string, error) {
		return text, nil
	})
}

func echoGenerator(format models.Format) generate.Generator {
	return generate.GeneratorFunc(func(ctx context.Context, text string) ([]byte, error) {
		return []byte(string(format) + ":" + text), nil
	})
}

type recorder struct {
	mu   sync.Mutex
	docs []models.Document
}

func (r *recorder) notify(doc models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
}

func (r *recorder) statuses(id int64) []models.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentStatus
	for _, d := range r.docs {
		if d.ID == id {
			out = append(out, d.Status)
		}
	}
	return out
}

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	opts.Store = st
	opts.Logger = zerolog.Nop()
	if opts.Extractors == nil {
		opts.Extractors = map[models.Format]extract.Extractor{
			models.FormatPDF:  staticExtractor("Hello world"),
			models.FormatDOCX: extract.DOCX{},
		}
	}
	if opts.Generators == nil {
		opts.Generators = map[models.Format]generate.Generator{
			models.FormatPDF:  echoGenerator(models.FormatPDF),
			models.FormatDOCX: echoGenerator(models.FormatDOCX),
		}
	}
	return New(opts), st
}

func TestSubmitPDFToDOCX(t *testing.T) {
	rec := &recorder{}
	p, st := newTestPipeline(t, Options{
		Enhancer: enhance.EnhancerFunc(func(ctx context.Context, text string) (enhance.Result, error) {
			return enhance.Result{Text: text + ".", Provider: "test"}, nil
		}),
		Notifier: rec.notify,
	})

	doc, err := p.Submit(context.Background(), []byte("%PDF-1.4 ..."), "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, models.FormatPDF, doc.OriginalFormat)
	assert.Equal(t, models.FormatDOCX, doc.ConvertedFormat)
	assert.Equal(t, "/api/download/1", doc.DownloadURL)
	assert.Equal(t, "Hello world", doc.Content)
	assert.Equal(t, "Hello world.", doc.EnhancedContent)
	assert.Empty(t, doc.Error)

	payload, err := st.GetPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "docx:Hello world.", string(payload))

	assert.Equal(t, []models.DocumentStatus{models.StatusPending, models.StatusCompleted}, rec.statuses(doc.ID))
}

func TestSubmitRateLimitedFallsBack(t *testing.T) {
	limited := enhance.EnhancerFunc(func(ctx context.Context, text string) (enhance.Result, error) {
		return enhance.Result{Provider: "openai"}, fmt.Errorf("status 429: %w", enhance.ErrRateLimited)
	})
	p, _ := newTestPipeline(t, Options{Enhancer: enhance.WithFallback(limited, nil)})

	doc, err := p.Submit(context.Background(), []byte("Meeting notes"), "notes.docx")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, models.FormatPDF, doc.ConvertedFormat)
	assert.Equal(t, "Meeting notes", doc.Content)
	assert.Equal(t, "[Note: AI enhancement unavailable]\n\nMeeting notes", doc.EnhancedContent)
}

func TestSubmitGeneratorFailure(t *testing.T) {
	p, st := newTestPipeline(t, Options{
		Generators: map[models.Format]generate.Generator{
			models.FormatDOCX: generate.GeneratorFunc(func(ctx context.Context, text string) ([]byte, error) {
				return nil, errors.New("font table missing")
			}),
		},
	})

	doc, err := p.Submit(context.Background(), []byte("x"), "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "conversion failed")
	assert.Contains(t, doc.Error, "font table missing")
	assert.Empty(t, doc.DownloadURL)

	_, err = st.GetPayload(context.Background(), doc.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	stored, err := st.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
}

func TestSubmitTextWithoutGlyphsFails(t *testing.T) {
	p, st := newTestPipeline(t, Options{
		Generators: map[models.Format]generate.Generator{
			models.FormatPDF: generate.NewPDF(),
		},
	})

	doc, err := p.Submit(context.Background(), []byte("会议记录"), "notes.docx")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "conversion failed")
	assert.Contains(t, doc.Error, generate.ErrUnsupportedCharacter.Error())

	_, err = st.GetPayload(context.Background(), doc.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitEnhancementFailure(t *testing.T) {
	p, _ := newTestPipeline(t, Options{
		Enhancer: enhance.WithFallback(enhance.EnhancerFunc(func(ctx context.Context, text string) (enhance.Result, error) {
			return enhance.Result{}, errors.New("connection refused")
		}), nil),
	})

	doc, err := p.Submit(context.Background(), []byte("x"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "enhancement failed")
}

func TestSubmitRejectsUnsupportedFormat(t *testing.T) {
	rec := &recorder{}
	p, st := newTestPipeline(t, Options{Notifier: rec.notify})

	_, err := p.Submit(context.Background(), []byte("plain"), "notes.txt")
	require.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = st.Get(context.Background(), 1)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, rec.docs)
}

func TestConcurrentSubmits(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})

	names := []string{"a.pdf", "b.docx", "c.pdf", "d.docx"}
	docs := make([]*models.Document, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			doc, err := p.Submit(context.Background(), []byte("body "+name), name)
			assert.NoError(t, err)
			docs[i] = doc
		}(i, name)
	}
	wg.Wait()

	ids := make([]int64, 0, len(docs))
	for i, doc := range docs {
		require.NotNil(t, doc)
		assert.Equal(t, models.StatusCompleted, doc.Status)
		assert.Equal(t, names[i], doc.OriginalName)
		ids = append(ids, doc.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestConcurrentSubmitsFailIndependently(t *testing.T) {
	names := []string{"good-1.docx", "broken-1.docx", "good-2.docx", "broken-2.docx"}

	// Every run waits here so that all of them are converting at once.
	var arrived sync.WaitGroup
	arrived.Add(len(names))
	p, st := newTestPipeline(t, Options{
		Generators: map[models.Format]generate.Generator{
			models.FormatPDF: generate.GeneratorFunc(func(ctx context.Context, text string) ([]byte, error) {
				arrived.Done()
				arrived.Wait()
				if strings.HasPrefix(text, "broken") {
					return nil, errors.New("unrenderable glyph")
				}
				return []byte("pdf:" + text), nil
			}),
		},
	})

	docs := make([]*models.Document, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			doc, err := p.Submit(context.Background(), []byte(name), name)
			assert.NoError(t, err)
			docs[i] = doc
		}(i, name)
	}
	wg.Wait()

	for i, doc := range docs {
		require.NotNil(t, doc)
		stored, err := st.Get(context.Background(), doc.ID)
		require.NoError(t, err)
		payload, payloadErr := st.GetPayload(context.Background(), doc.ID)

		if strings.HasPrefix(names[i], "broken") {
			assert.Equal(t, models.StatusError, stored.Status, names[i])
			assert.Contains(t, stored.Error, "unrenderable glyph")
			assert.Empty(t, stored.DownloadURL)
			assert.ErrorIs(t, payloadErr, store.ErrNotFound)
			continue
		}
		assert.Equal(t, models.StatusCompleted, stored.Status, names[i])
		assert.Empty(t, stored.Error)
		require.NoError(t, payloadErr)
		assert.Equal(t, "pdf:"+names[i], string(payload))
	}
}

// failingCompleteStore refuses to finish a document, as a database would on a
// lost connection.
type failingCompleteStore struct {
	*store.MemoryStore
}

func (failingCompleteStore) Complete(context.Context, int64, models.Completion, []byte) (*models.Document, error) {
	return nil, errors.New("connection reset")
}

func TestPersistenceFailureLeavesNoPayload(t *testing.T) {
	st := failingCompleteStore{MemoryStore: store.NewMemoryStore()}
	p := New(Options{
		Store:    st,
		Enhancer: enhance.Passthrough{},
		Extractors: map[models.Format]extract.Extractor{
			models.FormatPDF: staticExtractor("Hello world"),
		},
		Generators: map[models.Format]generate.Generator{
			models.FormatDOCX: echoGenerator(models.FormatDOCX),
		},
		Logger: zerolog.Nop(),
	})

	doc, err := p.Submit(context.Background(), []byte("x"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "persistence failed")
	assert.Contains(t, doc.Error, "connection reset")

	_, err = st.GetPayload(context.Background(), doc.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStepTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p, _ := newTestPipeline(t, Options{
		StepTimeout: 20 * time.Millisecond,
		Extractors: map[models.Format]extract.Extractor{
			models.FormatPDF: extract.ExtractorFunc(func(ctx context.Context, data []byte) (string, error) {
				<-release
				return "late", nil
			}),
		},
	})

	doc, err := p.Submit(context.Background(), []byte("x"), "slow.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "extraction failed")
	assert.Contains(t, doc.Error, context.DeadlineExceeded.Error())
}

func TestCollaboratorPanicIsRecorded(t *testing.T) {
	p, _ := newTestPipeline(t, Options{
		Enhancer: enhance.EnhancerFunc(func(ctx context.Context, text string) (enhance.Result, error) {
			panic("nil map")
		}),
	})

	doc, err := p.Submit(context.Background(), []byte("x"), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Contains(t, doc.Error, "panic: nil map")
}

func TestRunAfterCancelStillTerminates(t *testing.T) {
	p, st := newTestPipeline(t, Options{})

	doc, err := p.Create(context.Background(), "report.pdf")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final := p.Run(ctx, doc, []byte("x"))
	assert.Equal(t, models.StatusError, final.Status)

	stored, err := st.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
}

func TestStageErrorMatching(t *testing.T) {
	cause := errors.New("bad xref")
	err := error(&StageError{Stage: StageExtraction, Err: cause})

	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConversionFailed)
	assert.Equal(t, "extraction failed: bad xref", err.Error())

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageExtraction, se.Stage)
}

// Package pipeline drives an uploaded document from pending to a terminal state:
// extract text, enhance it, render the opposite format, store the payload.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jupark12/docshift/enhance"
	"github.com/jupark12/docshift/extract"
	"github.com/jupark12/docshift/generate"
	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/store"
)

// DefaultStepTimeout bounds each collaborator call.
const DefaultStepTimeout = 2 * time.Minute

// Notifier is called with the document after every status change.
type Notifier func(doc models.Document)

// Options configures a Pipeline. Only Store is required.
type Options struct {
	Store    store.Store
	Enhancer enhance.Enhancer
	// Extractors and Generators default to extract.For and generate.For.
	Extractors  map[models.Format]extract.Extractor
	Generators  map[models.Format]generate.Generator
	StepTimeout time.Duration
	Notifier    Notifier
	Logger      zerolog.Logger
}

// Pipeline converts documents. Each run touches only its own document id.
type Pipeline struct {
	store       store.Store
	enhancer    enhance.Enhancer
	extractors  map[models.Format]extract.Extractor
	generators  map[models.Format]generate.Generator
	stepTimeout time.Duration
	notifier    Notifier
	logger      zerolog.Logger
}

// New creates a Pipeline, filling unset collaborators with the defaults.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:       opts.Store,
		enhancer:    opts.Enhancer,
		extractors:  opts.Extractors,
		generators:  opts.Generators,
		stepTimeout: opts.StepTimeout,
		notifier:    opts.Notifier,
		logger:      opts.Logger.With().Str("component", "pipeline").Logger(),
	}
	if p.enhancer == nil {
		p.enhancer = enhance.Passthrough{}
	}
	if p.stepTimeout <= 0 {
		p.stepTimeout = DefaultStepTimeout
	}
	if p.extractors == nil {
		p.extractors = make(map[models.Format]extract.Extractor)
		for _, f := range models.SupportedFormats {
			p.extractors[f], _ = extract.For(f)
		}
	}
	if p.generators == nil {
		p.generators = make(map[models.Format]generate.Generator)
		for _, f := range models.SupportedFormats {
			p.generators[f], _ = generate.For(f)
		}
	}
	return p
}

// DownloadURL is the stable download reference for a document id.
func DownloadURL(id int64) string {
	return fmt.Sprintf("/api/download/%d", id)
}

// Create validates the filename and records a pending document. Unsupported
// extensions fail with models.ErrUnsupportedFormat before anything is stored.
func (p *Pipeline) Create(ctx context.Context, originalName string) (*models.Document, error) {
	from, err := models.ParseFormat(originalName)
	if err != nil {
		return nil, err
	}

	doc, err := p.store.Create(ctx, originalName, from, from.Complement())
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	p.logger.Info().
		Int64("document_id", doc.ID).
		Str("original_name", originalName).
		Str("from", string(from)).
		Str("to", string(doc.ConvertedFormat)).
		Msg("document created")
	p.notify(*doc)
	return doc, nil
}

// Submit creates the document and runs the conversion to completion.
func (p *Pipeline) Submit(ctx context.Context, data []byte, originalName string) (*models.Document, error) {
	doc, err := p.Create(ctx, originalName)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, doc, data), nil
}

// Run performs extract, enhance, convert and finalize for a pending document
// and returns it in its terminal state. Failures are recorded on the document,
// never returned.
func (p *Pipeline) Run(ctx context.Context, doc *models.Document, data []byte) *models.Document {
	logger := p.logger.With().
		Int64("document_id", doc.ID).
		Str("run_id", uuid.NewString()).
		Logger()
	start := time.Now()
	logger.Info().Int("bytes", len(data)).Msg("conversion started")

	final, err := p.execute(ctx, logger, doc, data)
	if err != nil {
		logger.Warn().Err(err).Msg("conversion failed")
		final = p.fail(ctx, logger, doc, err)
	} else {
		logger.Info().Dur("elapsed", time.Since(start)).Msg("conversion completed")
	}

	documentsTotal.WithLabelValues(string(final.Status)).Inc()
	p.notify(*final)
	return final
}

func (p *Pipeline) execute(ctx context.Context, logger zerolog.Logger, doc *models.Document, data []byte) (*models.Document, error) {
	extractor, ok := p.extractors[doc.OriginalFormat]
	if !ok {
		return nil, &StageError{Stage: StageExtraction, Err: fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, doc.OriginalFormat)}
	}
	generator, ok := p.generators[doc.ConvertedFormat]
	if !ok {
		return nil, &StageError{Stage: StageConversion, Err: fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, doc.ConvertedFormat)}
	}

	content, err := runStage(ctx, p.stepTimeout, StageExtraction, func(ctx context.Context) (string, error) {
		return extractor.Extract(ctx, data)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("chars", len(content)).Msg("text extracted")

	enhanced, err := runStage(ctx, p.stepTimeout, StageEnhancement, func(ctx context.Context) (enhance.Result, error) {
		return p.enhancer.Enhance(ctx, content)
	})
	if err != nil {
		return nil, err
	}
	if enhanced.Fallback {
		enhancementFallbacks.Inc()
		logger.Warn().Str("provider", enhanced.Provider).Msg("enhancement rate limited, using original content")
	}

	payload, err := runStage(ctx, p.stepTimeout, StageConversion, func(ctx context.Context) ([]byte, error) {
		return generator.Generate(ctx, enhanced.Text)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("bytes", len(payload)).Str("format", string(doc.ConvertedFormat)).Msg("payload generated")

	return runStage(ctx, p.stepTimeout, StagePersistence, func(ctx context.Context) (*models.Document, error) {
		return p.store.Complete(ctx, doc.ID, models.Completion{
			DownloadURL:     DownloadURL(doc.ID),
			Content:         content,
			EnhancedContent: enhanced.Text,
		}, payload)
	})
}

// fail records cause on the document. The write ignores cancellation of ctx so
// that an abandoned run still reaches a terminal state.
func (p *Pipeline) fail(ctx context.Context, logger zerolog.Logger, doc *models.Document, cause error) *models.Document {
	ctx = context.WithoutCancel(ctx)

	updated, err := p.store.MarkError(ctx, doc.ID, cause.Error())
	if err == nil {
		return updated
	}
	logger.Error().Err(err).Msg("failed to record conversion error")

	if current, getErr := p.store.Get(ctx, doc.ID); getErr == nil {
		return current
	}
	failed := *doc
	failed.Status = models.StatusError
	failed.Error = cause.Error()
	return &failed
}

func (p *Pipeline) notify(doc models.Document) {
	if p.notifier != nil {
		p.notifier(doc)
	}
}

// runStage calls fn under the step timeout, recovering panics, and wraps any
// failure in a StageError. A collaborator that ignores its context is abandoned
// once the timeout fires.
func runStage[T any](ctx context.Context, timeout time.Duration, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, &StageError{Stage: stage, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("panic: %v", r)
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if res.err != nil {
		var zero T
		return zero, &StageError{Stage: stage, Err: res.err}
	}
	return res.val, nil
}

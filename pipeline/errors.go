package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the conversion pipeline.
type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageEnhancement Stage = "enhancement"
	StageConversion  Stage = "conversion"
	StagePersistence Stage = "persistence"
)

var (
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrEnhancementFailed = errors.New("enhancement failed")
	ErrConversionFailed  = errors.New("conversion failed")
	ErrPersistenceFailed = errors.New("persistence failed")
)

// StageError records which stage of a run failed and why.
// It matches both its stage sentinel and the underlying cause with errors.Is.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *StageError) sentinel() error {
	switch e.Stage {
	case StageExtraction:
		return ErrExtractionFailed
	case StageEnhancement:
		return ErrEnhancementFailed
	case StageConversion:
		return ErrConversionFailed
	default:
		return ErrPersistenceFailed
	}
}

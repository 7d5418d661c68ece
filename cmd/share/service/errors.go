package service

import (
	"errors"
	"fmt"
)

// Stage names one step of the content pipeline
type Stage string

const (
	StageClassify      Stage = "classify"
	StageResolveHandle Stage = "resolve_handle"
	StageLocate        Stage = "locate"
	StageFetchRecord   Stage = "fetch_record"
	StageDecode        Stage = "decode"
	StageExtractBlob   Stage = "extract_blob"
	StageSynthesizeURL Stage = "synthesize_url"
	StageLayout        Stage = "layout"
	StageRender        Stage = "render"
)

// ErrContentEmpty means a text record has nothing to show
var ErrContentEmpty = errors.New("record has no content")

// StageError records which pipeline stage failed. A timeout surfaces as
// StageError{Stage, context.DeadlineExceeded} through errors.Is.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" when err carries none
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

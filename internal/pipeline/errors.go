package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ottie/internal/configgen"
	"ottie/internal/scraper"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageScrape  Stage = "scrape"
	StageExtract Stage = "extract"
	StageCall1   Stage = "call1"
	StageCall2   Stage = "call2"
	StagePersist Stage = "persist"
)

// ErrMissingInput is returned by a stage re-run whose input field is not
// on the record.
var ErrMissingInput = errors.New("required input is missing")

// StageError wraps a failure with the stage that produced it.
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

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// UserMessage turns a pipeline error into the short message stored in
// error_message.
func UserMessage(err error) string {
	var se *scraper.ScrapeError
	if errors.As(err, &se) {
		return se.Message
	}

	stage := Stage("")
	var st *StageError
	if errors.As(err, &st) {
		stage = st.Stage
	}

	if errors.Is(err, context.DeadlineExceeded) {
		switch stage {
		case StageCall1, StageCall2:
			return "AI request timeout: the config generator took too long to respond, please retry"
		default:
			return scraper.TimeoutMessage
		}
	}

	switch {
	case errors.Is(err, configgen.ErrNoInput):
		return "No readable listing content was found on this page"
	case errors.Is(err, ErrMissingInput):
		return "This step cannot run yet because an earlier step has not produced its output"
	}

	switch stage {
	case StageScrape:
		return "Could not fetch the listing page, please try again"
	case StageExtract:
		return "Could not read the listing content"
	case StageCall1:
		return "Generating the site config failed, please retry generation"
	case StageCall2:
		return "Refining the title and highlights failed, please retry the refinement"
	default:
		return "Something went wrong while building the preview, please try again"
	}
}

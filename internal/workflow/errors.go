package workflow

import "fmt"

// Kind classifies stage failures.
type Kind string

const (
	KindParse       Kind = "parse"
	KindValidation  Kind = "validation"
	KindPersistence Kind = "persistence"
	KindNotFound    Kind = "not_found"
	KindCompletion  Kind = "completion"
	KindEngine      Kind = "engine" // fault in the workflow itself
)

// StageError is captured into State.Err when a stage fails. Message is the
// user-facing text.
type StageError struct {
	Stage   Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("workflow: %s %s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("workflow: %s %s: %s: %v", e.Stage, e.Kind, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func stageError(stage Stage, kind Kind, message string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Err: err}
}

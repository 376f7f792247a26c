package ingest

import "fmt"

// Stage is a step of the ingestion state machine. An ingestion moves
// forward through the stages in order; a failure stops it at the stage it
// had reached.
type Stage string

const (
	StageReceived     Stage = "received"
	StageParsed       Stage = "parsed"
	StageProvisioned  Stage = "provisioned"
	StageRowsInserted Stage = "rows_inserted"
	StageKeyIssued    Stage = "key_issued"
	StageComplete     Stage = "complete"
)

// StageError reports a failed ingestion. Stage is the last stage the
// ingestion completed before Err occurred.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingestion failed after %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func failAt(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

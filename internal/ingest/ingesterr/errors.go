// Package ingesterr classifies ingest pipeline failures into the stable
// codes the state machine, the result callback, and the admin timeline all
// key off of. Errors are codes, not exception hierarchies: a stage wraps
// whatever it failed on into a StageError carrying the stage name and the
// classified code, and that's what gets persisted on IngestJob.
package ingesterr

import (
	"errors"
	"fmt"
)

// Code is one of the stable error codes from the taxonomy. These are
// persisted verbatim on IngestJob.last_error_code and in IngestEvent
// payloads, so they must never be renamed once shipped.
type Code string

const (
	CodeStorageTempFileMissing Code = "STORAGE_TEMP_FILE_MISSING"
	CodeStorageReadFail        Code = "STORAGE_READ_FAIL"
	CodeStorageWriteFail       Code = "STORAGE_WRITE_FAIL"
	CodeCaptionParseFail       Code = "CAPTION_PARSE_FAIL"
	CodeSummaryExtractFail     Code = "SUMMARY_EXTRACT_FAIL"
	CodeRuleClassifyFail       Code = "RULE_CLASSIFY_FAIL"
	CodeDBWriteFail            Code = "DB_WRITE_FAIL"
	CodeNotifyCallbackFail     Code = "NOTIFY_CALLBACK_FAIL"
	CodeDLQMaxAttempts         Code = "DLQ_MAX_ATTEMPTS"
	CodePipelineUnexpected     Code = "PIPELINE_UNEXPECTED"
)

// StageError wraps a failure with the pipeline stage it occurred in and its
// classified code. Pipeline stage names match the IngestJobState the job
// was attempting to reach; the notify hook uses the stage name "notify".
type StageError struct {
	Stage string
	Code  Code
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Wrap builds a StageError for the given stage and code.
func Wrap(stage string, code Code, err error) *StageError {
	return &StageError{Stage: stage, Code: code, Err: err}
}

// As is a small convenience around errors.As for callers that just want the
// classified code off of an arbitrary error returned by a stage.
func As(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

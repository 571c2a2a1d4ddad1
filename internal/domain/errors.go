package domain

import "errors"

var (
	// ErrContestNotLive rejects submissions while the contest is not running.
	ErrContestNotLive = errors.New("contest is not live")
	// ErrKeyNotSet means no answer key has been uploaded for the task, so
	// scoring is unavailable (not "zero rows").
	ErrKeyNotSet = errors.New("answer key not set for task")
	// ErrMalformedInput indicates CSV text with unterminated quote nesting.
	ErrMalformedInput = errors.New("malformed csv input")
	// ErrMalformedKey indicates an answer key file with too few columns.
	ErrMalformedKey = errors.New("malformed answer key")
	// ErrRowCountMismatch means a submission's data-row count differs from
	// the answer key's. Wrapped errors carry both counts.
	ErrRowCountMismatch = errors.New("row count mismatch")
	// ErrEmptySubmission is returned for an empty or blank submission file.
	ErrEmptySubmission = errors.New("submission file is empty")
	// ErrTeamNotFound indicates an unknown team ID.
	ErrTeamNotFound = errors.New("team not found")
	// ErrTaskNotFound indicates an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidStatus indicates an unrecognized contest status value.
	ErrInvalidStatus = errors.New("invalid contest status")
)

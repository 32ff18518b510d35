package errors

import "errors"

// Domain errors
var (
	// Submission errors
	ErrInvalidTarget    = errors.New("target is not a valid absolute http(s) URL")
	ErrEmptyProbeSet    = errors.New("probe set cannot be empty")
	ErrUnknownProbeType = errors.New("unknown probe type")

	// Job errors
	ErrJobNotFound         = errors.New("scan job not found")
	ErrJobNotTerminal      = errors.New("scan job has not reached a terminal state")
	ErrJobAlreadyTerminal  = errors.New("scan job already reached a terminal state")
	ErrJobNotRunning       = errors.New("scan job is not running")
	ErrJobAlreadyStarted   = errors.New("scan job already started")
	ErrDuplicateOutcome    = errors.New("probe type already produced an outcome")
	ErrOutcomeNotRequested = errors.New("outcome recorded for a probe type that was not requested")
	ErrOutcomeIncomplete   = errors.New("not every requested probe type produced an outcome")

	// Probe errors, recorded as outcomes and never raised past the dispatch boundary
	ErrProbeTimeout = errors.New("probe timed out")
	ErrProbeFailure = errors.New("probe failed")

	// Deadline errors
	ErrJobDeadlineExceeded = errors.New("job deadline exceeded")

	// Certificate errors
	ErrCertificateAlreadyIssued = errors.New("certificate already issued")
	ErrEmptySigningSecret       = errors.New("signing secret cannot be empty")

	// Repository errors
	ErrStorePersistence      = errors.New("job store persistence failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)

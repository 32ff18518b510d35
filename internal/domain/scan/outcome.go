package scan

import (
	"errors"
	"fmt"
	"time"
)

// OutcomeKind classifies what a probe reported back.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeFailure        OutcomeKind = "failure"
)

// Usable reports whether the kind carries a sub-score the scoring engine may
// aggregate.
func (k OutcomeKind) Usable() bool {
	return k == OutcomeSuccess || k == OutcomePartialSuccess
}

// ProbeOutcome records what a single probe produced for a job. A job holds at
// most one outcome per requested probe type; outcomes are immutable once
// constructed.
type ProbeOutcome struct {
	probeType  ProbeType
	kind       OutcomeKind
	subScore   int
	details    map[string]any
	err        string
	recordedAt time.Time
}

// NewSuccessOutcome builds an outcome for a probe that completed fully.
func NewSuccessOutcome(t ProbeType, subScore int, details map[string]any) (*ProbeOutcome, error) {
	return newScoredOutcome(t, OutcomeSuccess, subScore, details)
}

// NewPartialSuccessOutcome builds an outcome for a probe that completed with
// degraded coverage but still produced a usable sub-score.
func NewPartialSuccessOutcome(t ProbeType, subScore int, details map[string]any) (*ProbeOutcome, error) {
	return newScoredOutcome(t, OutcomePartialSuccess, subScore, details)
}

func newScoredOutcome(t ProbeType, kind OutcomeKind, subScore int, details map[string]any) (*ProbeOutcome, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid probe type %q", t)
	}
	if subScore < 0 || subScore > 100 {
		return nil, fmt.Errorf("sub-score %d outside [0,100]", subScore)
	}
	return &ProbeOutcome{
		probeType:  t,
		kind:       kind,
		subScore:   subScore,
		details:    copyDetails(details),
		recordedAt: time.Now().UTC(),
	}, nil
}

// NewTimeoutOutcome builds an outcome for a probe that exceeded its timeout.
func NewTimeoutOutcome(t ProbeType, errMsg string) (*ProbeOutcome, error) {
	return newFailedOutcome(t, OutcomeTimeout, errMsg, nil)
}

// NewFailureOutcome builds an outcome for a probe that errored or crashed.
func NewFailureOutcome(t ProbeType, errMsg string, details map[string]any) (*ProbeOutcome, error) {
	return newFailedOutcome(t, OutcomeFailure, errMsg, details)
}

func newFailedOutcome(t ProbeType, kind OutcomeKind, errMsg string, details map[string]any) (*ProbeOutcome, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid probe type %q", t)
	}
	if errMsg == "" {
		return nil, errors.New("error description cannot be empty")
	}
	return &ProbeOutcome{
		probeType:  t,
		kind:       kind,
		details:    copyDetails(details),
		err:        errMsg,
		recordedAt: time.Now().UTC(),
	}, nil
}

// ReconstructOutcome rebuilds an outcome from persisted data without
// revalidating it.
func ReconstructOutcome(t ProbeType, kind OutcomeKind, subScore int, details map[string]any,
	errMsg string, recordedAt time.Time) *ProbeOutcome {
	return &ProbeOutcome{
		probeType:  t,
		kind:       kind,
		subScore:   subScore,
		details:    copyDetails(details),
		err:        errMsg,
		recordedAt: recordedAt,
	}
}

func (o *ProbeOutcome) ProbeType() ProbeType {
	return o.probeType
}

func (o *ProbeOutcome) Kind() OutcomeKind {
	return o.kind
}

// SubScore returns the probe's sub-score; ok is false for kinds that carry
// no usable score.
func (o *ProbeOutcome) SubScore() (int, bool) {
	if !o.kind.Usable() {
		return 0, false
	}
	return o.subScore, true
}

func (o *ProbeOutcome) Details() map[string]any {
	return copyDetails(o.details)
}

// Error returns the probe's error description, empty unless the kind is
// Timeout or Failure.
func (o *ProbeOutcome) Error() string {
	return o.err
}

func (o *ProbeOutcome) RecordedAt() time.Time {
	return o.recordedAt
}

func copyDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}

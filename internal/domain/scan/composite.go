package scan

import (
	"errors"
	"fmt"
	"time"
)

// SecurityLevel buckets a composite score for display and certificates.
type SecurityLevel string

const (
	LevelExcellent SecurityLevel = "excellent"
	LevelGood      SecurityLevel = "good"
	LevelWarning   SecurityLevel = "warning"
	LevelCritical  SecurityLevel = "critical"
)

// LevelForScore maps a 0-100 score to its security level.
func LevelForScore(score int) SecurityLevel {
	switch {
	case score >= 90:
		return LevelExcellent
	case score >= 80:
		return LevelGood
	case score >= 60:
		return LevelWarning
	default:
		return LevelCritical
	}
}

// CompositeResult is the aggregated outcome of a whole job, produced exactly
// once by the scoring engine at finalization and never mutated afterwards.
type CompositeResult struct {
	jobID           string
	score           int
	level           SecurityLevel
	recommendations []string
	outcomes        map[ProbeType]*ProbeOutcome
	computedAt      time.Time
}

// NewCompositeResult validates and freezes an aggregation result.
func NewCompositeResult(jobID string, score int, recommendations []string,
	outcomes map[ProbeType]*ProbeOutcome) (*CompositeResult, error) {
	if jobID == "" {
		return nil, errors.New("job ID cannot be empty")
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("composite score %d outside [0,100]", score)
	}
	if len(outcomes) == 0 {
		return nil, errors.New("composite result requires at least one outcome")
	}

	recsCopy := make([]string, len(recommendations))
	copy(recsCopy, recommendations)
	outcomesCopy := make(map[ProbeType]*ProbeOutcome, len(outcomes))
	for t, o := range outcomes {
		outcomesCopy[t] = o
	}

	return &CompositeResult{
		jobID:           jobID,
		score:           score,
		level:           LevelForScore(score),
		recommendations: recsCopy,
		outcomes:        outcomesCopy,
		computedAt:      time.Now().UTC(),
	}, nil
}

// ReconstructCompositeResult rebuilds a composite result from persisted data.
func ReconstructCompositeResult(jobID string, score int, level SecurityLevel,
	recommendations []string, outcomes map[ProbeType]*ProbeOutcome, computedAt time.Time) *CompositeResult {
	return &CompositeResult{
		jobID:           jobID,
		score:           score,
		level:           level,
		recommendations: recommendations,
		outcomes:        outcomes,
		computedAt:      computedAt,
	}
}

func (c *CompositeResult) JobID() string {
	return c.jobID
}

func (c *CompositeResult) Score() int {
	return c.score
}

func (c *CompositeResult) Level() SecurityLevel {
	return c.level
}

func (c *CompositeResult) Recommendations() []string {
	out := make([]string, len(c.recommendations))
	copy(out, c.recommendations)
	return out
}

// Outcome returns the outcome recorded for t, if any.
func (c *CompositeResult) Outcome(t ProbeType) (*ProbeOutcome, bool) {
	o, ok := c.outcomes[t]
	return o, ok
}

// Outcomes returns the recorded outcomes keyed by probe type.
func (c *CompositeResult) Outcomes() map[ProbeType]*ProbeOutcome {
	out := make(map[ProbeType]*ProbeOutcome, len(c.outcomes))
	for t, o := range c.outcomes {
		out[t] = o
	}
	return out
}

func (c *CompositeResult) ComputedAt() time.Time {
	return c.computedAt
}

package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// Certificate is the verifiable attestation issued for a terminal job. The
// score is a snapshot frozen at job completion; re-issuing returns the same
// certificate rather than deriving a new one.
type Certificate struct {
	jobID           string
	issuedAt        time.Time
	validUntil      time.Time
	score           int
	level           SecurityLevel
	token           string
	verificationURL string
}

// NewCertificate builds a certificate for a terminal job. Validity runs one
// year from issuance.
func NewCertificate(jobID string, issuedAt time.Time, score int, token, verificationURL string) (*Certificate, error) {
	if jobID == "" {
		return nil, errors.New("job ID cannot be empty")
	}
	if token == "" {
		return nil, errors.New("verification token cannot be empty")
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("score %d outside [0,100]", score)
	}
	issuedAt = issuedAt.UTC()
	return &Certificate{
		jobID:           jobID,
		issuedAt:        issuedAt,
		validUntil:      issuedAt.AddDate(0, 0, constants.CertificateValidityDays),
		score:           score,
		level:           LevelForScore(score),
		token:           token,
		verificationURL: verificationURL,
	}, nil
}

// ReconstructCertificate rebuilds a certificate from persisted data.
func ReconstructCertificate(jobID string, issuedAt, validUntil time.Time, score int,
	token, verificationURL string) *Certificate {
	return &Certificate{
		jobID:           jobID,
		issuedAt:        issuedAt,
		validUntil:      validUntil,
		score:           score,
		level:           LevelForScore(score),
		token:           token,
		verificationURL: verificationURL,
	}
}

func (c *Certificate) JobID() string {
	return c.jobID
}

func (c *Certificate) IssuedAt() time.Time {
	return c.issuedAt
}

func (c *Certificate) ValidUntil() time.Time {
	return c.validUntil
}

func (c *Certificate) Score() int {
	return c.score
}

func (c *Certificate) Level() SecurityLevel {
	return c.level
}

// Eligible reports whether the score clears the display eligibility bar.
// Issuance itself never depends on it.
func (c *Certificate) Eligible() bool {
	return c.score >= constants.CertificateEligibleScore
}

func (c *Certificate) Token() string {
	return c.token
}

func (c *Certificate) VerificationURL() string {
	return c.verificationURL
}

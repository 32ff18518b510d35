// Package certificate issues verifiable scan certificates and builds the
// report payloads and PDF artifacts exported over the API and CLI.
package certificate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// DefaultVerifyBaseURL is used when no verification host is configured.
const DefaultVerifyBaseURL = "https://cyberaudit.example.com"

// Issuer derives verification tokens and issues certificates for terminal
// jobs. Tokens are HMAC-SHA256 over the job ID and issuance time, so a
// certificate verifies without storing anything beyond the job itself.
type Issuer struct {
	secret        []byte
	verifyBaseURL string
}

// NewIssuer builds an issuer from the signing secret. The verification base
// URL defaults when empty; a trailing slash is trimmed.
func NewIssuer(secret, verifyBaseURL string) (*Issuer, error) {
	if secret == "" {
		return nil, sharederrors.ErrEmptySigningSecret
	}
	if verifyBaseURL == "" {
		verifyBaseURL = DefaultVerifyBaseURL
	}
	return &Issuer{
		secret:        []byte(secret),
		verifyBaseURL: strings.TrimRight(verifyBaseURL, "/"),
	}, nil
}

// Token derives the verification token for a job issued at the given time.
// Issuance time is truncated to whole seconds so the token survives an
// RFC3339 round-trip through the archive.
func (i *Issuer) Token(jobID string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%s:%s", jobID, issuedAt.UTC().Truncate(time.Second).Format(time.RFC3339))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token matches the job and issuance time.
func (i *Issuer) Verify(jobID string, issuedAt time.Time, token string) bool {
	return hmac.Equal([]byte(i.Token(jobID, issuedAt)), []byte(token))
}

// Issue returns the job's certificate, deriving and attaching it on the first
// call. Failed jobs are certifiable too: they carry score 0 and stay below
// the eligibility bar, but the attestation itself is still verifiable. The
// caller persists the job afterwards so re-issuance stays stable.
func (i *Issuer) Issue(job *scan.Job) (*scan.Certificate, error) {
	if cert := job.Certificate(); cert != nil {
		return cert, nil
	}
	if !job.Status().Terminal() {
		return nil, fmt.Errorf("%w: status %s", sharederrors.ErrJobNotTerminal, job.Status())
	}

	score := 0
	if composite := job.Composite(); composite != nil {
		score = composite.Score()
	}
	issuedAt := time.Now().UTC().Truncate(time.Second)
	token := i.Token(job.ID(), issuedAt)
	cert, err := scan.NewCertificate(job.ID(), issuedAt, score, token, i.verifyBaseURL+"/verify/"+token)
	if err != nil {
		return nil, err
	}
	if err := job.AttachCertificate(cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// CertificatePayload is the JSON shape of an issued certificate.
type CertificatePayload struct {
	ScanID          string    `json:"scan_id"`
	Target          string    `json:"target"`
	Score           int       `json:"score"`
	SecurityLevel   string    `json:"security_level"`
	Eligible        bool      `json:"eligible"`
	IssuedAt        time.Time `json:"issued_at"`
	ValidUntil      time.Time `json:"valid_until"`
	Token           string    `json:"token"`
	VerificationURL string    `json:"verification_url"`
}

// PayloadFor flattens a certificate and its job into the export shape.
func PayloadFor(job *scan.Job, cert *scan.Certificate) CertificatePayload {
	return CertificatePayload{
		ScanID:          cert.JobID(),
		Target:          job.Target(),
		Score:           cert.Score(),
		SecurityLevel:   string(cert.Level()),
		Eligible:        cert.Eligible(),
		IssuedAt:        cert.IssuedAt(),
		ValidUntil:      cert.ValidUntil(),
		Token:           cert.Token(),
		VerificationURL: cert.VerificationURL(),
	}
}

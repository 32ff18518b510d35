package certificate_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// completedJob builds a job where every probe succeeded at the given score.
func completedJob(t *testing.T, score int) *scan.Job {
	t.Helper()

	job, err := scan.NewJob("https://example.com", []string{"ssl", "headers"}, "ru")
	require.NoError(t, err)
	require.NoError(t, job.Start())

	ssl, err := scan.NewSuccessOutcome(scan.ProbeSSL, score, map[string]any{
		"https":  true,
		"issues": []string{"Сертификат истекает через 10 дней"},
	})
	require.NoError(t, err)
	require.NoError(t, job.RecordOutcome(ssl))

	headers, err := scan.NewSuccessOutcome(scan.ProbeHeaders, score, map[string]any{
		"issues": []string{},
	})
	require.NoError(t, err)
	require.NoError(t, job.RecordOutcome(headers))

	composite, err := scan.NewCompositeResult(job.ID(), score, []string{"Включите HSTS"}, job.Outcomes())
	require.NoError(t, err)
	require.NoError(t, job.Finalize(composite))
	return job
}

// partialJob builds a job where SSL scored 80 and the headers probe timed out.
func partialJob(t *testing.T) *scan.Job {
	t.Helper()

	job, err := scan.NewJob("https://example.com", []string{"ssl", "headers"}, "ru")
	require.NoError(t, err)
	require.NoError(t, job.Start())

	ssl, err := scan.NewSuccessOutcome(scan.ProbeSSL, 80, map[string]any{
		"issues": []string{"Отсутствует HSTS"},
	})
	require.NoError(t, err)
	require.NoError(t, job.RecordOutcome(ssl))

	headers, err := scan.NewTimeoutOutcome(scan.ProbeHeaders, "probe timed out after 25s")
	require.NoError(t, err)
	require.NoError(t, job.RecordOutcome(headers))

	composite, err := scan.NewCompositeResult(job.ID(), 80, []string{"Включите HSTS"}, job.Outcomes())
	require.NoError(t, err)
	require.NoError(t, job.Finalize(composite))
	require.Equal(t, scan.StatusPartialFailure, job.Status())
	return job
}

// failedJob builds a job where the only probe timed out.
func failedJob(t *testing.T) *scan.Job {
	t.Helper()

	job, err := scan.NewJob("https://example.com", []string{"ssl"}, "uz")
	require.NoError(t, err)
	require.NoError(t, job.Start())

	outcome, err := scan.NewTimeoutOutcome(scan.ProbeSSL, "probe timed out after 25s")
	require.NoError(t, err)
	require.NoError(t, job.RecordOutcome(outcome))

	composite, err := scan.NewCompositeResult(job.ID(), 0, []string{"Skanerlashni qayta urinib ko'ring"}, job.Outcomes())
	require.NoError(t, err)
	require.NoError(t, job.Finalize(composite))
	require.Equal(t, scan.StatusFailed, job.Status())
	return job
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := certificate.NewIssuer("", "")
	require.ErrorIs(t, err, sharederrors.ErrEmptySigningSecret)
}

func TestTokenIsDeterministic(t *testing.T) {
	t.Parallel()

	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := iss.Token("job-1", issuedAt)
	require.Len(t, token, 64)
	require.Equal(t, token, iss.Token("job-1", issuedAt))
	require.Equal(t, token, iss.Token("job-1", issuedAt.Add(300*time.Millisecond)),
		"sub-second precision must not change the token")
	require.NotEqual(t, token, iss.Token("job-2", issuedAt))
	require.NotEqual(t, token, iss.Token("job-1", issuedAt.Add(time.Second)))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)
	other, err := certificate.NewIssuer("different", "")
	require.NoError(t, err)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := iss.Token("job-1", issuedAt)

	require.True(t, iss.Verify("job-1", issuedAt, token))
	require.False(t, iss.Verify("job-2", issuedAt, token))
	require.False(t, iss.Verify("job-1", issuedAt.Add(time.Second), token))
	require.False(t, other.Verify("job-1", issuedAt, token))
}

func TestIssueRequiresTerminalJob(t *testing.T) {
	t.Parallel()

	job, err := scan.NewJob("https://example.com", []string{"ssl"}, "ru")
	require.NoError(t, err)

	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)

	_, err = iss.Issue(job)
	require.ErrorIs(t, err, sharederrors.ErrJobNotTerminal)
}

func TestIssueAttachesVerifiableCertificate(t *testing.T) {
	t.Parallel()

	job := completedJob(t, 85)
	iss, err := certificate.NewIssuer("s3cret", "https://audit.example.uz/")
	require.NoError(t, err)

	cert, err := iss.Issue(job)
	require.NoError(t, err)

	require.Equal(t, job.ID(), cert.JobID())
	require.Equal(t, 85, cert.Score())
	require.Equal(t, scan.LevelGood, cert.Level())
	require.True(t, cert.Eligible())
	require.True(t, cert.ValidUntil().Equal(cert.IssuedAt().AddDate(0, 0, 365)))
	require.Equal(t, "https://audit.example.uz/verify/"+cert.Token(), cert.VerificationURL())
	require.True(t, iss.Verify(cert.JobID(), cert.IssuedAt(), cert.Token()))
	require.NotNil(t, job.Certificate())
}

func TestIssueIsIdempotent(t *testing.T) {
	t.Parallel()

	job := completedJob(t, 90)
	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)

	first, err := iss.Issue(job)
	require.NoError(t, err)
	second, err := iss.Issue(job)
	require.NoError(t, err)

	require.Equal(t, first.Token(), second.Token())
	require.True(t, first.IssuedAt().Equal(second.IssuedAt()))
}

func TestIssueFailedJobScoresZero(t *testing.T) {
	t.Parallel()

	job := failedJob(t)
	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)

	cert, err := iss.Issue(job)
	require.NoError(t, err)

	require.Equal(t, 0, cert.Score())
	require.Equal(t, scan.LevelCritical, cert.Level())
	require.False(t, cert.Eligible())
	require.True(t, strings.HasPrefix(cert.VerificationURL(), certificate.DefaultVerifyBaseURL+"/verify/"))
	require.True(t, iss.Verify(cert.JobID(), cert.IssuedAt(), cert.Token()))
}

func TestPayloadFor(t *testing.T) {
	t.Parallel()

	job := completedJob(t, 92)
	iss, err := certificate.NewIssuer("s3cret", "")
	require.NoError(t, err)
	cert, err := iss.Issue(job)
	require.NoError(t, err)

	payload := certificate.PayloadFor(job, cert)
	require.Equal(t, job.ID(), payload.ScanID)
	require.Equal(t, "https://example.com", payload.Target)
	require.Equal(t, 92, payload.Score)
	require.Equal(t, "excellent", payload.SecurityLevel)
	require.True(t, payload.Eligible)
	require.Equal(t, cert.Token(), payload.Token)
	require.Equal(t, cert.VerificationURL(), payload.VerificationURL)
}

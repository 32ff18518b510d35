package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultProbeTimeout bounds a single probe's execution.
	DefaultProbeTimeout = 25 * time.Second
	// DefaultJobDeadline bounds a whole scan job; probes still outstanding
	// when it elapses are force-recorded as timed out.
	DefaultJobDeadline = 90 * time.Second
	// DefaultConcurrency is the shared worker pool size across all jobs.
	DefaultConcurrency = 8
	// DefaultDispatchRate limits probe dispatches per second across jobs.
	DefaultDispatchRate = 10
	// DefaultProbeDialTimeout bounds individual network operations inside a
	// probe, well under the probe timeout so several can run in sequence.
	DefaultProbeDialTimeout = 10 * time.Second
	// DefaultPortDialTimeout bounds a single port-sweep connection attempt.
	DefaultPortDialTimeout = 2 * time.Second
)

const (
	// RawCaptureLimitBytes caps how many bytes of a response body a probe inspects.
	RawCaptureLimitBytes = 64 * 1024
	// DetailStringLimit caps any single string stored in probe details.
	DetailStringLimit = 512
	// DetailListLimit caps the element count of any list stored in probe details.
	DetailListLimit = 64
	// MaxRecommendations caps the recommendation list of a composite result.
	MaxRecommendations = 15
)

const (
	// CertificateValidityDays is how long an issued certificate stays valid.
	CertificateValidityDays = 365
	// CertificateEligibleScore is the minimum composite score for the
	// eligible flag on certificate payloads.
	CertificateEligibleScore = 80
	// TLSSoonExpiryWindow flags target certificates expiring inside this window.
	TLSSoonExpiryWindow = 30 * 24 * time.Hour
)

// Package probe implements the security probes a scan job runs against its
// target. Probers are capability modules behind one contract: honor the
// context, return a Report instead of an error, and keep details flat and
// renderer-safe. The orchestrator owns timeouts and panic recovery; a prober
// only describes what it saw.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// Report is what a prober hands back. Success and PartialSuccess carry
// SubScore in [0,100]; Timeout and Failure carry Err.
type Report struct {
	Kind     scan.OutcomeKind
	SubScore int
	Details  map[string]any
	Err      string
}

// Prober probes a single security aspect of a target URL.
type Prober interface {
	Type() scan.ProbeType
	Probe(ctx context.Context, target string) Report
}

// Registry maps probe types to their implementations.
type Registry struct {
	mu      sync.RWMutex
	probers map[scan.ProbeType]Prober
}

func NewRegistry() *Registry {
	return &Registry{probers: make(map[scan.ProbeType]Prober)}
}

// NewDefaultRegistry builds a registry with every catalog prober wired to its
// default settings.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewRegistry()
	r.Register(&SSLProber{Timeout: constants.DefaultProbeDialTimeout, Logger: logger})
	r.Register(&PortsProber{DialTimeout: constants.DefaultPortDialTimeout, Logger: logger})
	r.Register(&HeadersProber{Timeout: constants.DefaultProbeDialTimeout, Logger: logger})
	r.Register(&CMSProber{Timeout: constants.DefaultProbeDialTimeout, Logger: logger})
	r.Register(&ResilienceProber{Timeout: constants.DefaultProbeDialTimeout, Logger: logger})
	return r
}

func (r *Registry) Register(p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers[p.Type()] = p
}

func (r *Registry) Lookup(t scan.ProbeType) (Prober, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.probers[t]
	return p, ok
}

// Types returns the registered probe types in catalog order.
func (r *Registry) Types() []scan.ProbeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scan.ProbeType, 0, len(r.probers))
	for _, t := range scan.AllProbeTypes() {
		if _, ok := r.probers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func logOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// failure builds a Failure or Timeout report depending on what killed the
// probe. Context deadlines and net timeouts become Timeout so the scoring
// engine can tell "slow" from "broken".
func failure(err error, details map[string]any) Report {
	kind := scan.OutcomeFailure
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = scan.OutcomeTimeout
	}
	return Report{Kind: kind, Details: details, Err: err.Error()}
}

// targetEndpoint splits a target URL into host and dial address, defaulting
// the port from the scheme.
func targetEndpoint(target string) (scheme, host, addr string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", "", fmt.Errorf("parse target: %w", err)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", "", errors.New("target has no host")
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return u.Scheme, host, net.JoinHostPort(host, port), nil
}

// newHTTPClient builds the client probers share: bounded timeout, no
// certificate verification (the TLS prober judges certificates, the rest just
// need the response), and optionally pinned redirects.
func newHTTPClient(timeout time.Duration, followRedirects bool) *http.Client {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// fetch issues a HEAD request and falls back to GET for servers that reject
// HEAD. The caller owns the response body.
func fetch(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err == nil {
		return resp, nil
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return client.Do(req)
}

// SanitizeDetails bounds and scrubs a detail map so any renderer can trust
// it: control characters stripped, strings and lists capped, nested values
// normalized. The orchestrator applies it at the dispatch boundary rather
// than trusting individual probers.
func SanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[scrubString(k)] = sanitizeValue(v)
	}
	return out
}

// ScrubText sanitizes a single free-form string, used for error descriptions.
func ScrubText(s string) string {
	return scrubString(s)
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, int, int64, float64:
		return val
	case string:
		return scrubString(val)
	case []string:
		n := min(len(val), constants.DetailListLimit)
		out := make([]string, 0, n)
		for _, s := range val[:n] {
			out = append(out, scrubString(s))
		}
		return out
	case []any:
		n := min(len(val), constants.DetailListLimit)
		out := make([]any, 0, n)
		for _, item := range val[:n] {
			out = append(out, sanitizeValue(item))
		}
		return out
	case []map[string]any:
		n := min(len(val), constants.DetailListLimit)
		out := make([]map[string]any, 0, n)
		for _, m := range val[:n] {
			out = append(out, SanitizeDetails(m))
		}
		return out
	case map[string]any:
		return SanitizeDetails(val)
	default:
		return scrubString(fmt.Sprint(val))
	}
}

func scrubString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	count := 0
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if count == constants.DetailStringLimit {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

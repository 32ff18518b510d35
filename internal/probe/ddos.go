package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
)

type cdnProvider struct {
	key             string
	name            string
	headers         []string
	protectionLevel string
}

// cdnProviders are matched in order against response headers; the first
// provider with a matching header wins.
var cdnProviders = []cdnProvider{
	{key: "cloudflare", name: "Cloudflare", headers: []string{"Cf-Ray", "Cf-Cache-Status"}, protectionLevel: "excellent"},
	{key: "cloudfront", name: "Amazon CloudFront", headers: []string{"X-Amz-Cf-Id", "X-Cache"}, protectionLevel: "good"},
	{key: "akamai", name: "Akamai", headers: []string{"Akamai-Origin-Hop"}, protectionLevel: "excellent"},
}

const rateLimitProbes = 3

// ResilienceProber estimates how a site would hold up under volumetric
// attack: CDN in front, several origin addresses, rate limiting on repeat
// requests.
type ResilienceProber struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

func (p *ResilienceProber) Type() scan.ProbeType { return scan.ProbeDDoS }

func (p *ResilienceProber) Probe(ctx context.Context, target string) Report {
	_, host, _, err := targetEndpoint(target)
	if err != nil {
		return Report{Kind: scan.OutcomeFailure, Err: err.Error()}
	}

	addrs, dnsErr := p.lookupOrigins(ctx, host)
	singleIP := len(addrs) <= 1

	client := newHTTPClient(p.Timeout, true)
	resp, fetchErr := fetchGet(ctx, client, target)
	if fetchErr != nil && dnsErr != nil {
		return failure(fmt.Errorf("fetch target: %w", fetchErr), nil)
	}

	detected := false
	provider := cdnProvider{}
	rateLimited := false
	rateLimitMethod := ""
	complete := fetchErr == nil

	if fetchErr == nil {
		detected, provider = detectCDN(resp.Header)
		rateLimited, rateLimitMethod = checkRateLimit(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if !rateLimited {
			rateLimited, rateLimitMethod, complete = p.hammer(ctx, client, target)
		}
	} else {
		logOrNop(p.Logger).Debug("resilience probe could not fetch target, reporting DNS findings only",
			zap.String("target", target), zap.Error(fetchErr))
	}

	score := 0
	issues := []string{}
	if detected {
		switch provider.protectionLevel {
		case "excellent":
			score += 50
		case "good":
			score += 35
		default:
			score += 20
		}
	} else {
		issues = append(issues, "no CDN or DDoS mitigation layer detected")
	}
	if singleIP {
		issues = append(issues, "single origin address is a single point of failure")
	} else {
		score += 25
	}
	if rateLimited {
		score += 25
	} else if fetchErr == nil {
		issues = append(issues, "no rate limiting observed on repeated requests")
	}

	details := map[string]any{
		"cdn_detected":      detected,
		"cdn":               provider.name,
		"protection_level":  provider.protectionLevel,
		"ip_count":          len(addrs),
		"single_ip":         singleIP,
		"addresses":         addrs,
		"rate_limited":      rateLimited,
		"rate_limit_method": rateLimitMethod,
		"issues":            issues,
	}
	if dnsErr != nil {
		details["dns_error"] = dnsErr.Error()
	}

	kind := scan.OutcomeSuccess
	if !complete {
		kind = scan.OutcomePartialSuccess
	}
	return Report{Kind: kind, SubScore: clamp(score), Details: details}
}

func (p *ResilienceProber) lookupOrigins(ctx context.Context, host string) ([]string, error) {
	resolver := &net.Resolver{PreferGo: true}
	addrs, err := resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.String())
	}
	return out, nil
}

func detectCDN(header http.Header) (bool, cdnProvider) {
	for _, provider := range cdnProviders {
		for _, name := range provider.headers {
			if header.Get(name) != "" {
				return true, provider
			}
		}
	}
	return false, cdnProvider{}
}

// checkRateLimit inspects a single response for throttling signals.
func checkRateLimit(resp *http.Response) (bool, string) {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, "HTTP 429 status"
	}
	for _, name := range []string{"X-Ratelimit-Remaining", "Retry-After"} {
		if resp.Header.Get(name) != "" {
			return true, "header: " + name
		}
	}
	return false, ""
}

// hammer issues a short burst of spaced GETs looking for throttling. A
// request that times out mid-burst is itself taken as a throttling signal.
func (p *ResilienceProber) hammer(ctx context.Context, client *http.Client, target string) (limited bool, method string, complete bool) {
	for i := 0; i < rateLimitProbes; i++ {
		if err := sleepCtx(ctx, 250*time.Millisecond); err != nil {
			return false, "", false
		}
		resp, err := fetchGet(ctx, client, target)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", false
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return true, "request timeout under burst", true
			}
			continue
		}
		limited, method = checkRateLimit(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if limited {
			return limited, method, true
		}
	}
	return false, "", true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

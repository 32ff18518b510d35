package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
)

// headerStrength grades how well a present header is configured.
type headerStrength int

const (
	strengthGood headerStrength = iota
	strengthExcellent
	strengthWarning
	strengthInvalid
)

type headerSpec struct {
	name     string
	weight   int
	required bool
	check    func(value string) (headerStrength, string)
}

// headerSpecs fixes the inspection order. The first four are the critical
// set; missing one costs half its weight.
var headerSpecs = []headerSpec{
	{"Strict-Transport-Security", 20, true, checkHSTS},
	{"Content-Security-Policy", 20, true, checkCSP},
	{"X-Frame-Options", 15, true, checkXFrameOptions},
	{"X-Content-Type-Options", 10, true, checkXContentTypeOptions},
	{"Referrer-Policy", 10, false, checkReferrerPolicy},
	{"Permissions-Policy", 5, false, nil},
	{"X-XSS-Protection", 5, false, nil},
	{"Expect-CT", 5, false, nil},
}

// disclosureHeaders leak implementation detail and cost 5 points each.
var disclosureHeaders = []string{
	"Server",
	"X-Powered-By",
	"X-AspNet-Version",
	"X-AspNetMvc-Version",
}

var hstsMaxAge = regexp.MustCompile(`max-age=(\d+)`)

// HeadersProber grades the target's HTTP response headers: security headers
// present and well-formed, disclosure headers absent, HTTP redirected to
// HTTPS.
type HeadersProber struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

func (p *HeadersProber) Type() scan.ProbeType { return scan.ProbeHeaders }

func (p *HeadersProber) Probe(ctx context.Context, target string) Report {
	scheme, _, _, err := targetEndpoint(target)
	if err != nil {
		return Report{Kind: scan.OutcomeFailure, Err: err.Error()}
	}

	client := newHTTPClient(p.Timeout, false)
	resp, err := fetch(ctx, client, target)
	if err != nil {
		return failure(fmt.Errorf("fetch target: %w", err), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	present := map[string]any{}
	missing := []string{}
	issues := []string{}
	score := 0

	for _, spec := range headerSpecs {
		value := resp.Header.Get(spec.name)
		if value == "" {
			missing = append(missing, spec.name)
			if spec.required {
				score -= spec.weight / 2
				issues = append(issues, fmt.Sprintf("missing critical header %s", spec.name))
			}
			continue
		}
		present[spec.name] = value

		strength := strengthGood
		issue := ""
		if spec.check != nil {
			strength, issue = spec.check(value)
		}
		switch strength {
		case strengthExcellent:
			score += int(float64(spec.weight) * 1.1)
		case strengthWarning:
			score += int(float64(spec.weight) * 0.7)
			issues = append(issues, fmt.Sprintf("%s: %s", spec.name, issue))
		case strengthInvalid:
			score -= 10
			issues = append(issues, fmt.Sprintf("%s: %s", spec.name, issue))
		default:
			score += spec.weight
		}
	}

	disclosure := []string{}
	for _, name := range disclosureHeaders {
		if value := resp.Header.Get(name); value != "" {
			disclosure = append(disclosure, name)
			issues = append(issues, fmt.Sprintf("%s header discloses server information", name))
			score -= 5
		}
	}

	redirected, permanent := false, false
	if scheme == "https" {
		redirected, permanent = p.checkHTTPRedirect(ctx, client, target)
		if redirected {
			score += 5
			if permanent {
				score += 5
			}
		}
	}

	details := map[string]any{
		"status_code":        resp.StatusCode,
		"present":            present,
		"missing":            missing,
		"disclosure":         disclosure,
		"https_redirect":     redirected,
		"redirect_permanent": permanent,
		"issues":             issues,
	}

	return Report{Kind: scan.OutcomeSuccess, SubScore: clamp(score), Details: details}
}

// checkHTTPRedirect fetches the plain-HTTP variant of an HTTPS target and
// reports whether it redirects back to HTTPS, and permanently so.
func (p *HeadersProber) checkHTTPRedirect(ctx context.Context, client *http.Client, target string) (redirected, permanent bool) {
	httpTarget := "http://" + strings.TrimPrefix(target, "https://")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpTarget, nil)
	if err != nil {
		return false, false
	}
	resp, err := client.Do(req)
	if err != nil {
		logOrNop(p.Logger).Debug("plain-http redirect check failed", zap.Error(err))
		return false, false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusPermanentRedirect:
		permanent = true
		fallthrough
	case http.StatusFound:
		redirected = strings.HasPrefix(resp.Header.Get("Location"), "https://")
	}
	if !redirected {
		permanent = false
	}
	return redirected, permanent
}

func checkHSTS(value string) (headerStrength, string) {
	v := strings.ToLower(value)
	if !strings.Contains(v, "max-age=") {
		return strengthInvalid, "missing max-age directive"
	}
	match := hstsMaxAge.FindStringSubmatch(v)
	if match == nil {
		return strengthInvalid, "malformed max-age directive"
	}
	maxAge, err := strconv.Atoi(match[1])
	if err != nil || maxAge == 0 {
		return strengthInvalid, "max-age of 0 disables HSTS"
	}
	if maxAge < 31536000 {
		return strengthWarning, "max-age below one year"
	}
	if strings.Contains(v, "includesubdomains") {
		return strengthExcellent, ""
	}
	return strengthGood, ""
}

func checkCSP(value string) (headerStrength, string) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "default-src *" {
		return strengthInvalid, "policy allows every source"
	}
	if strings.Contains(v, "unsafe-inline") || strings.Contains(v, "unsafe-eval") {
		return strengthWarning, "policy contains unsafe directives"
	}
	return strengthGood, ""
}

func checkXFrameOptions(value string) (headerStrength, string) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DENY":
		return strengthExcellent, ""
	case "SAMEORIGIN":
		return strengthGood, ""
	default:
		return strengthInvalid, "use DENY or SAMEORIGIN"
	}
}

func checkXContentTypeOptions(value string) (headerStrength, string) {
	if strings.EqualFold(strings.TrimSpace(value), "nosniff") {
		return strengthGood, ""
	}
	return strengthInvalid, "use nosniff"
}

func checkReferrerPolicy(value string) (headerStrength, string) {
	v := strings.ToLower(value)
	for _, safe := range []string{"no-referrer", "same-origin", "strict-origin", "strict-origin-when-cross-origin"} {
		if strings.Contains(v, safe) {
			return strengthGood, ""
		}
	}
	if strings.Contains(v, "unsafe-url") {
		return strengthWarning, "policy may leak full URLs in the referrer"
	}
	return strengthWarning, "weak referrer policy"
}

// Package scoring turns a job's probe outcomes into a composite result. It is
// pure: no I/O, no clock beyond the composite's construction timestamp, and
// deterministic output for a given outcome set and locale.
package scoring

import (
	"fmt"
	"math"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/i18n"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// Aggregate computes the composite result for a job whose every requested
// probe type has reported. The composite score is the weighted mean of the
// usable sub-scores, renormalized over the weights of the probes that
// actually produced one, so a timeout lowers confidence without zeroing the
// composite. No usable sub-score at all yields 0.
func Aggregate(jobID string, requested []scan.ProbeType, outcomes map[scan.ProbeType]*scan.ProbeOutcome, locale string) (*scan.CompositeResult, error) {
	if len(requested) == 0 {
		return nil, sharederrors.ErrEmptyProbeSet
	}

	selected := make(map[scan.ProbeType]*scan.ProbeOutcome, len(requested))
	var weighted, totalWeight float64
	for _, t := range requested {
		o, ok := outcomes[t]
		if !ok {
			return nil, fmt.Errorf("%w: %s", sharederrors.ErrOutcomeIncomplete, t)
		}
		selected[t] = o
		if sub, usable := o.SubScore(); usable {
			weighted += float64(sub) * t.Weight()
			totalWeight += t.Weight()
		}
	}

	score := 0
	if totalWeight > 0 {
		score = clampScore(roundHalfUp(weighted / totalWeight))
	}

	recs := Recommendations(requested, selected, locale)
	return scan.NewCompositeResult(jobID, score, recs, selected)
}

// Recommendations renders the advisory list for an outcome set. Ordering is
// fixed by the probe catalog's declaration order, never by discovery order;
// duplicates are dropped and the list is capped.
func Recommendations(requested []scan.ProbeType, outcomes map[scan.ProbeType]*scan.ProbeOutcome, locale string) []string {
	requestedSet := make(map[scan.ProbeType]bool, len(requested))
	for _, t := range requested {
		requestedSet[t] = true
	}

	var recs []string
	for _, t := range scan.AllProbeTypes() {
		if !requestedSet[t] {
			continue
		}
		o, ok := outcomes[t]
		if !ok {
			continue
		}
		if !o.Kind().Usable() {
			recs = append(recs, i18n.T(locale, "could_not_verify", i18n.ProbeLabel(locale, t.String())))
			continue
		}
		if recommend := probeRecommenders[t]; recommend != nil {
			recs = append(recs, recommend(o.Details(), locale)...)
		}
	}
	recs = append(recs, generalRecommendations(requested, outcomes, locale)...)

	return capRecommendations(dedupe(recs))
}

var probeRecommenders = map[scan.ProbeType]func(d map[string]any, locale string) []string{
	scan.ProbeSSL:     sslRecommendations,
	scan.ProbePorts:   portRecommendations,
	scan.ProbeHeaders: headerRecommendations,
	scan.ProbeCMS:     cmsRecommendations,
	scan.ProbeDDoS:    ddosRecommendations,
}

func sslRecommendations(d map[string]any, locale string) []string {
	if !detailBool(d, "https") {
		return []string{
			i18n.T(locale, "install_ssl_https"),
			i18n.T(locale, "redirect_https"),
		}
	}
	var recs []string
	if detailBool(d, "self_signed") || detailBool(d, "expired") {
		recs = append(recs, i18n.T(locale, "ssl_update_config"))
	}
	if detailBool(d, "expires_soon") {
		recs = append(recs, i18n.T(locale, "renew_certificate"))
	}
	if len(detailStrings(d, "weak_protocols")) > 0 {
		recs = append(recs, i18n.T(locale, "disable_legacy_tls"))
	}
	return recs
}

func portRecommendations(d map[string]any, locale string) []string {
	dangerous := detailMaps(d, "dangerous_ports")
	var recs []string
	for i, entry := range dangerous {
		if i == 3 {
			break
		}
		port := detailInt(entry, "port")
		service := detailString(entry, "service")
		switch {
		case port == 21:
			recs = append(recs, i18n.T(locale, "replace_ftp"))
		case port == 23:
			recs = append(recs, i18n.T(locale, "replace_telnet"))
		case port == 3389:
			recs = append(recs, i18n.T(locale, "restrict_rdp"))
		case port == 1433 || port == 3306 || port == 5432:
			recs = append(recs, i18n.T(locale, "close_database_port", service))
		default:
			recs = append(recs, i18n.T(locale, "close_port", port, service))
		}
	}
	if len(dangerous) > 3 {
		recs = append(recs, i18n.T(locale, "review_remaining_ports", len(dangerous)-3))
	}
	return recs
}

// priorityHeaders are the missing headers worth a dedicated recommendation.
var priorityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
}

func headerRecommendations(d map[string]any, locale string) []string {
	missing := make(map[string]bool)
	for _, h := range detailStrings(d, "missing") {
		missing[h] = true
	}
	var recs []string
	for _, h := range priorityHeaders {
		if missing[h] {
			recs = append(recs, i18n.T(locale, "add_header", h))
		}
	}
	if len(detailStrings(d, "disclosure")) > 0 {
		recs = append(recs, i18n.T(locale, "hide_server_headers"))
	}
	return recs
}

func cmsRecommendations(d map[string]any, locale string) []string {
	if !detailBool(d, "cms_detected") {
		return nil
	}
	var recs []string
	if len(detailStrings(d, "vulnerabilities")) > 0 {
		recs = append(recs, i18n.T(locale, "update_cms", detailString(d, "cms")))
		if detailString(d, "risk_level") == "critical" {
			recs = append(recs, i18n.T(locale, "patch_critical_vulns"))
		}
	}
	if len(detailStrings(d, "exposed_files")) > 0 {
		recs = append(recs, i18n.T(locale, "restrict_cms_files"))
	}
	if len(detailStrings(d, "outdated_plugins")) > 0 {
		recs = append(recs, i18n.T(locale, "update_plugins"))
	}
	return recs
}

func ddosRecommendations(d map[string]any, locale string) []string {
	var recs []string
	if !detailBool(d, "cdn_detected") {
		recs = append(recs, i18n.T(locale, "setup_cdn_protection"))
	}
	if !detailBool(d, "rate_limited") {
		recs = append(recs, i18n.T(locale, "enable_rate_limiting"))
	}
	if detailBool(d, "single_ip") {
		recs = append(recs, i18n.T(locale, "setup_load_balancing"))
	}
	return recs
}

func generalRecommendations(requested []scan.ProbeType, outcomes map[scan.ProbeType]*scan.ProbeOutcome, locale string) []string {
	criticalProbes, totalIssues := 0, 0
	for _, t := range requested {
		o, ok := outcomes[t]
		if !ok {
			continue
		}
		sub, usable := o.SubScore()
		if !usable {
			continue
		}
		if scan.LevelForScore(sub) == scan.LevelCritical {
			criticalProbes++
		}
		totalIssues += len(detailStrings(o.Details(), "issues"))
	}

	var recs []string
	if criticalProbes > 2 {
		recs = append(recs, i18n.T(locale, "full_audit"))
	}
	if totalIssues > 10 {
		recs = append(recs, i18n.T(locale, "remediation_plan"), i18n.T(locale, "monitor_security"))
	}
	recs = append(recs, i18n.T(locale, "regular_updates"), i18n.T(locale, "strong_auth"))
	return recs
}

func dedupe(recs []string) []string {
	seen := make(map[string]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func capRecommendations(recs []string) []string {
	if len(recs) > constants.MaxRecommendations {
		return recs[:constants.MaxRecommendations]
	}
	return recs
}

// roundHalfUp rounds to the nearest integer with .5 always rounding up. It is
// applied once, at the final composite step; sub-scores and weights are never
// rounded on the way in.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

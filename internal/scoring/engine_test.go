package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/i18n"
	"github.com/jalal-stack/cyberaudit/internal/scoring"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

func mustSuccess(t *testing.T, pt scan.ProbeType, subScore int, details map[string]any) *scan.ProbeOutcome {
	t.Helper()
	o, err := scan.NewSuccessOutcome(pt, subScore, details)
	require.NoError(t, err)
	return o
}

func mustTimeout(t *testing.T, pt scan.ProbeType) *scan.ProbeOutcome {
	t.Helper()
	o, err := scan.NewTimeoutOutcome(pt, "probe deadline exceeded")
	require.NoError(t, err)
	return o
}

func mustFailure(t *testing.T, pt scan.ProbeType) *scan.ProbeOutcome {
	t.Helper()
	o, err := scan.NewFailureOutcome(pt, "connection refused", nil)
	require.NoError(t, err)
	return o
}

func ru(key string, args ...any) string {
	return i18n.T(scan.DefaultLocale, key, args...)
}

func TestAggregateWeightedMean(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbeHeaders}
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, 90, map[string]any{"https": true}),
		scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 70, nil),
	}

	result, err := scoring.Aggregate("job-1", requested, outcomes, scan.DefaultLocale)
	require.NoError(t, err)
	require.Equal(t, "job-1", result.JobID())
	require.Equal(t, 80, result.Score())
	require.Equal(t, scan.LevelGood, result.Level())

	echoed, ok := result.Outcome(scan.ProbeSSL)
	require.True(t, ok)
	sub, usable := echoed.SubScore()
	require.True(t, usable)
	require.Equal(t, 90, sub)
}

func TestAggregateRenormalizesOverUsableProbes(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbeHeaders}
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, 90, map[string]any{"https": true}),
		scan.ProbeHeaders: mustTimeout(t, scan.ProbeHeaders),
	}

	result, err := scoring.Aggregate("job-2", requested, outcomes, scan.DefaultLocale)
	require.NoError(t, err)
	require.Equal(t, 90, result.Score())
	require.Equal(t, scan.LevelExcellent, result.Level())
	require.Contains(t, result.Recommendations(),
		ru("could_not_verify", i18n.ProbeLabel(scan.DefaultLocale, "headers")))
}

func TestAggregateNoUsableProbes(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbeHeaders}
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbeSSL:     mustFailure(t, scan.ProbeSSL),
		scan.ProbeHeaders: mustTimeout(t, scan.ProbeHeaders),
	}

	result, err := scoring.Aggregate("job-3", requested, outcomes, scan.DefaultLocale)
	require.NoError(t, err)
	require.Equal(t, 0, result.Score())
	require.Equal(t, scan.LevelCritical, result.Level())
}

func TestAggregateRoundsHalfUp(t *testing.T) {
	t.Parallel()

	t.Run("two probes", func(t *testing.T) {
		t.Parallel()
		requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbeHeaders}
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, 85, map[string]any{"https": true}),
			scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 70, nil),
		}

		// (85*0.25 + 70*0.25) / 0.50 = 77.5, which must round up, not truncate.
		result, err := scoring.Aggregate("job-4", requested, outcomes, scan.DefaultLocale)
		require.NoError(t, err)
		require.Equal(t, 78, result.Score())
	})

	t.Run("full catalog", func(t *testing.T) {
		t.Parallel()
		requested := scan.AllProbeTypes()
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, 80, map[string]any{"https": true}),
			scan.ProbePorts:   mustSuccess(t, scan.ProbePorts, 60, nil),
			scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 90, nil),
			scan.ProbeCMS:     mustSuccess(t, scan.ProbeCMS, 100, nil),
			scan.ProbeDDoS:    mustSuccess(t, scan.ProbeDDoS, 50, map[string]any{"cdn_detected": true, "rate_limited": true}),
		}

		// 20 + 12 + 22.5 + 20 + 5 = 79.5 over weight 1.0.
		result, err := scoring.Aggregate("job-5", requested, outcomes, scan.DefaultLocale)
		require.NoError(t, err)
		require.Equal(t, 80, result.Score())
	})
}

func TestAggregateScoreBounds(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbePorts}
	for _, edge := range []int{0, 100} {
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL:   mustSuccess(t, scan.ProbeSSL, edge, map[string]any{"https": true}),
			scan.ProbePorts: mustSuccess(t, scan.ProbePorts, edge, nil),
		}
		result, err := scoring.Aggregate("job-6", requested, outcomes, scan.DefaultLocale)
		require.NoError(t, err)
		require.Equal(t, edge, result.Score())
	}
}

func TestAggregateMonotonic(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbeHeaders, scan.ProbeDDoS}
	previous := -1
	for sub := 0; sub <= 100; sub += 10 {
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, sub, map[string]any{"https": true}),
			scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 50, nil),
			scan.ProbeDDoS:    mustSuccess(t, scan.ProbeDDoS, 50, nil),
		}
		result, err := scoring.Aggregate("job-7", requested, outcomes, scan.DefaultLocale)
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.Score(), previous)
		previous = result.Score()
	}
}

func TestAggregateGuards(t *testing.T) {
	t.Parallel()

	t.Run("empty probe set", func(t *testing.T) {
		t.Parallel()
		_, err := scoring.Aggregate("job-8", nil, nil, scan.DefaultLocale)
		require.ErrorIs(t, err, sharederrors.ErrEmptyProbeSet)
	})

	t.Run("missing outcome", func(t *testing.T) {
		t.Parallel()
		requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbePorts}
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL: mustSuccess(t, scan.ProbeSSL, 90, nil),
		}
		_, err := scoring.Aggregate("job-9", requested, outcomes, scan.DefaultLocale)
		require.ErrorIs(t, err, sharederrors.ErrOutcomeIncomplete)
	})
}

func TestProbeRuleTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		probe   scan.ProbeType
		details map[string]any
		want    []string
	}{
		{
			name:    "ssl without https",
			probe:   scan.ProbeSSL,
			details: map[string]any{"https": false},
			want:    []string{ru("install_ssl_https"), ru("redirect_https")},
		},
		{
			name: "ssl weak configuration",
			probe: scan.ProbeSSL,
			details: map[string]any{
				"https":          true,
				"self_signed":    true,
				"expires_soon":   true,
				"weak_protocols": []string{"TLS 1.0"},
			},
			want: []string{ru("ssl_update_config"), ru("renew_certificate"), ru("disable_legacy_tls")},
		},
		{
			name:    "ssl expired certificate",
			probe:   scan.ProbeSSL,
			details: map[string]any{"https": true, "expired": true},
			want:    []string{ru("ssl_update_config")},
		},
		{
			name:  "ports known services",
			probe: scan.ProbePorts,
			details: map[string]any{
				"dangerous_ports": []map[string]any{
					{"port": 21, "service": "ftp"},
					{"port": 23, "service": "telnet"},
					{"port": 3306, "service": "mysql"},
					{"port": 6379, "service": "redis"},
				},
			},
			want: []string{
				ru("replace_ftp"),
				ru("replace_telnet"),
				ru("close_database_port", "mysql"),
				ru("review_remaining_ports", 1),
			},
		},
		{
			name:  "ports decoded from archive",
			probe: scan.ProbePorts,
			details: map[string]any{
				"dangerous_ports": []any{
					map[string]any{"port": float64(8080), "service": "http-alt"},
				},
			},
			want: []string{ru("close_port", 8080, "http-alt")},
		},
		{
			name:  "headers missing and leaking",
			probe: scan.ProbeHeaders,
			details: map[string]any{
				"missing":    []string{"X-Frame-Options", "Strict-Transport-Security", "X-Content-Type-Options"},
				"disclosure": []string{"Server"},
			},
			want: []string{
				ru("add_header", "Strict-Transport-Security"),
				ru("add_header", "X-Frame-Options"),
				ru("hide_server_headers"),
			},
		},
		{
			name:    "cms not detected",
			probe:   scan.ProbeCMS,
			details: map[string]any{"cms_detected": false},
			want:    nil,
		},
		{
			name:  "cms fully exposed",
			probe: scan.ProbeCMS,
			details: map[string]any{
				"cms_detected":     true,
				"cms":              "WordPress",
				"vulnerabilities":  []string{"CVE-2024-0001"},
				"risk_level":       "critical",
				"exposed_files":    []string{"/.env"},
				"outdated_plugins": []string{"akismet"},
			},
			want: []string{
				ru("update_cms", "WordPress"),
				ru("patch_critical_vulns"),
				ru("restrict_cms_files"),
				ru("update_plugins"),
			},
		},
		{
			name:    "ddos unprotected",
			probe:   scan.ProbeDDoS,
			details: map[string]any{"cdn_detected": false, "rate_limited": false, "single_ip": true},
			want:    []string{ru("setup_cdn_protection"), ru("enable_rate_limiting"), ru("setup_load_balancing")},
		},
		{
			name:    "ddos protected",
			probe:   scan.ProbeDDoS,
			details: map[string]any{"cdn_detected": true, "rate_limited": true, "single_ip": false},
			want:    nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			requested := []scan.ProbeType{tc.probe}
			outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
				tc.probe: mustSuccess(t, tc.probe, 70, tc.details),
			}

			want := append(append([]string{}, tc.want...), ru("regular_updates"), ru("strong_auth"))
			require.Equal(t, want, scoring.Recommendations(requested, outcomes, scan.DefaultLocale))
		})
	}
}

func TestRecommendationsFollowCatalogOrder(t *testing.T) {
	t.Parallel()

	requested := scan.AllProbeTypes()
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbeSSL:   mustSuccess(t, scan.ProbeSSL, 70, map[string]any{"https": false}),
		scan.ProbePorts: mustSuccess(t, scan.ProbePorts, 70, map[string]any{"dangerous_ports": []map[string]any{{"port": 23, "service": "telnet"}}}),
		scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 70, map[string]any{
			"missing": []string{"Content-Security-Policy"},
		}),
		scan.ProbeCMS:  mustSuccess(t, scan.ProbeCMS, 70, map[string]any{"cms_detected": false}),
		scan.ProbeDDoS: mustSuccess(t, scan.ProbeDDoS, 70, map[string]any{"cdn_detected": false, "rate_limited": true}),
	}

	want := []string{
		ru("install_ssl_https"),
		ru("redirect_https"),
		ru("replace_telnet"),
		ru("add_header", "Content-Security-Policy"),
		ru("setup_cdn_protection"),
		ru("regular_updates"),
		ru("strong_auth"),
	}
	require.Equal(t, want, scoring.Recommendations(requested, outcomes, scan.DefaultLocale))
}

func TestRecommendationsDeduplicate(t *testing.T) {
	t.Parallel()

	requested := []scan.ProbeType{scan.ProbePorts}
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbePorts: mustSuccess(t, scan.ProbePorts, 70, map[string]any{
			"dangerous_ports": []map[string]any{
				{"port": 3306, "service": "mysql"},
				{"port": 3306, "service": "mysql"},
			},
		}),
	}

	want := []string{
		ru("close_database_port", "mysql"),
		ru("regular_updates"),
		ru("strong_auth"),
	}
	require.Equal(t, want, scoring.Recommendations(requested, outcomes, scan.DefaultLocale))
}

func TestRecommendationsGeneralAdvice(t *testing.T) {
	t.Parallel()

	t.Run("critical probe mass triggers audit", func(t *testing.T) {
		t.Parallel()
		requested := []scan.ProbeType{scan.ProbeSSL, scan.ProbePorts, scan.ProbeHeaders}
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeSSL:     mustSuccess(t, scan.ProbeSSL, 40, map[string]any{"https": true}),
			scan.ProbePorts:   mustSuccess(t, scan.ProbePorts, 30, nil),
			scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 20, nil),
		}
		require.Contains(t, scoring.Recommendations(requested, outcomes, scan.DefaultLocale), ru("full_audit"))
	})

	t.Run("issue overload triggers remediation plan", func(t *testing.T) {
		t.Parallel()
		issues := make([]string, 11)
		for i := range issues {
			issues[i] = "weak setting"
		}
		requested := []scan.ProbeType{scan.ProbeHeaders}
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 70, map[string]any{"issues": issues}),
		}

		recs := scoring.Recommendations(requested, outcomes, scan.DefaultLocale)
		require.Contains(t, recs, ru("remediation_plan"))
		require.Contains(t, recs, ru("monitor_security"))
	})

	t.Run("baseline advice always present", func(t *testing.T) {
		t.Parallel()
		requested := []scan.ProbeType{scan.ProbeDDoS}
		outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
			scan.ProbeDDoS: mustSuccess(t, scan.ProbeDDoS, 100, map[string]any{"cdn_detected": true, "rate_limited": true}),
		}

		recs := scoring.Recommendations(requested, outcomes, scan.DefaultLocale)
		require.Equal(t, []string{ru("regular_updates"), ru("strong_auth")}, recs)
	})
}

func TestRecommendationsCapped(t *testing.T) {
	t.Parallel()

	issues := []string{"a", "b", "c", "d"}
	requested := scan.AllProbeTypes()
	outcomes := map[scan.ProbeType]*scan.ProbeOutcome{
		scan.ProbeSSL: mustSuccess(t, scan.ProbeSSL, 40, map[string]any{
			"https": true, "self_signed": true, "expires_soon": true,
			"weak_protocols": []string{"TLS 1.0"}, "issues": issues,
		}),
		scan.ProbePorts: mustSuccess(t, scan.ProbePorts, 30, map[string]any{
			"dangerous_ports": []map[string]any{
				{"port": 21, "service": "ftp"},
				{"port": 23, "service": "telnet"},
				{"port": 3389, "service": "rdp"},
				{"port": 3306, "service": "mysql"},
			},
			"issues": issues,
		}),
		scan.ProbeHeaders: mustSuccess(t, scan.ProbeHeaders, 20, map[string]any{
			"missing":    []string{"Strict-Transport-Security", "Content-Security-Policy", "X-Frame-Options"},
			"disclosure": []string{"Server"},
			"issues":     issues,
		}),
		scan.ProbeCMS: mustSuccess(t, scan.ProbeCMS, 10, map[string]any{
			"cms_detected": true, "cms": "Joomla",
			"vulnerabilities":  []string{"CVE-2024-0002"},
			"risk_level":       "critical",
			"exposed_files":    []string{"/backup.sql"},
			"outdated_plugins": []string{"editor"},
			"issues":           issues,
		}),
		scan.ProbeDDoS: mustSuccess(t, scan.ProbeDDoS, 5, map[string]any{
			"cdn_detected": false, "rate_limited": false, "single_ip": true, "issues": issues,
		}),
	}

	recs := scoring.Recommendations(requested, outcomes, scan.DefaultLocale)
	require.Len(t, recs, 15)
	require.NotContains(t, recs, ru("strong_auth"))
}

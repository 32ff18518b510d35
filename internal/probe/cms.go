package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// cmsSignature fingerprints one content-management system. Confidence points:
// matching header 20, meta generator 30 (captures the version), body pattern
// 15, reachable well-known path 25. A system is reported only above 50.
type cmsSignature struct {
	key      string
	name     string
	headers  map[string]string
	meta     []*regexp.Regexp
	patterns []*regexp.Regexp
	paths    []string
}

var cmsSignatures = []cmsSignature{
	{
		key:  "wordpress",
		name: "WordPress",
		headers: map[string]string{
			"X-Powered-By": "wordpress",
		},
		meta: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<meta name="generator" content="WordPress ([0-9.]+)"`),
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)/wp-content/themes/`),
			regexp.MustCompile(`(?i)/wp-content/plugins/`),
		},
		paths: []string{"/wp-admin/", "/wp-content/"},
	},
	{
		key:  "drupal",
		name: "Drupal",
		headers: map[string]string{
			"X-Drupal-Cache": "",
			"X-Generator":    "drupal",
		},
		meta: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<meta name="Generator" content="Drupal ([0-9.]+)"`),
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)/sites/default/files/`),
			regexp.MustCompile(`(?i)/modules/`),
		},
		paths: []string{"/user/login", "/admin/"},
	},
	{
		key:  "joomla",
		name: "Joomla",
		meta: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<meta name="generator" content="Joomla! ([0-9.]+)"`),
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)/media/system/`),
			regexp.MustCompile(`(?i)/templates/`),
		},
		paths: []string{"/administrator/", "/components/"},
	},
	{
		key:  "magento",
		name: "Magento",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)/skin/frontend/`),
			regexp.MustCompile(`(?i)/media/catalog/`),
		},
		paths: []string{"/admin/", "/downloader/"},
	},
	{
		key:  "opencart",
		name: "OpenCart",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)/catalog/view/theme/`),
		},
		paths: []string{"/admin/", "/catalog/"},
	},
}

// cmsVulnerabilities maps CMS key and release line to published CVE ids.
// Versions at or below the listed line are considered affected.
var cmsVulnerabilities = map[string]map[string][]string{
	"wordpress": {
		"5.0": {"CVE-2019-8942", "CVE-2019-8943"},
		"4.9": {"CVE-2018-6389", "CVE-2017-17092"},
		"4.8": {"CVE-2017-14723", "CVE-2017-16510"},
	},
	"drupal": {
		"8.5":  {"CVE-2018-7600", "CVE-2018-7602"},
		"7.58": {"CVE-2018-7600", "CVE-2017-6920"},
		"7.57": {"CVE-2017-6925", "CVE-2017-6924"},
	},
	"joomla": {
		"3.8": {"CVE-2018-6376", "CVE-2018-6377"},
		"3.7": {"CVE-2017-8917", "CVE-2017-7985"},
	},
}

var cveSeverity = map[string]string{
	"CVE-2019-8942": "high",
	"CVE-2018-7600": "critical",
	"CVE-2018-6389": "medium",
	"CVE-2017-8917": "high",
}

// genericExposedPaths are checked on every target regardless of the CMS.
var genericExposedPaths = []string{"/.env", "/.git/config", "/backup.sql", "/phpinfo.php"}

var cmsExposedPaths = map[string][]string{
	"wordpress": {"/wp-config.php", "/readme.html", "/license.txt", "/.htaccess", "/wp-admin/install.php", "/xmlrpc.php"},
	"drupal":    {"/CHANGELOG.txt", "/COPYRIGHT.txt", "/INSTALL.txt", "/LICENSE.txt", "/MAINTAINERS.txt", "/install.php"},
	"joomla":    {"/configuration.php", "/htaccess.txt", "/LICENSE.txt", "/README.txt"},
}

var highRiskFiles = map[string]bool{
	"/wp-config.php": true, "/configuration.php": true, "/.htaccess": true,
	"/.env": true, "/.git/config": true, "/backup.sql": true,
}

var mediumRiskFiles = map[string]bool{
	"/readme.html": true, "/license.txt": true, "/xmlrpc.php": true, "/phpinfo.php": true,
}

var wpPluginPattern = regexp.MustCompile(`(?i)/wp-content/plugins/([^/'"]+)`)

// CMSProber fingerprints the CMS behind a site, matches its version against
// known CVEs, and probes for exposed installation files.
type CMSProber struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

func (p *CMSProber) Type() scan.ProbeType { return scan.ProbeCMS }

func (p *CMSProber) Probe(ctx context.Context, target string) Report {
	pageClient := newHTTPClient(p.Timeout, true)
	resp, err := fetchGet(ctx, pageClient, target)
	if err != nil {
		return failure(fmt.Errorf("fetch target: %w", err), nil)
	}
	body := readCapped(resp.Body)
	resp.Body.Close()

	probeClient := newHTTPClient(p.Timeout, false)
	detection, complete := p.detect(ctx, probeClient, target, resp.Header, body)

	vulns, riskLevel := matchVulnerabilities(detection)
	exposed, exposedComplete := p.checkExposedFiles(ctx, probeClient, target, detection.key)
	plugins, pluginsComplete := p.analyzePlugins(ctx, probeClient, target, detection, body)
	complete = complete && exposedComplete && pluginsComplete

	issues := []string{}
	for _, v := range vulns {
		issues = append(issues, fmt.Sprintf("%s affects %s %s", v["id"], detection.name, detection.version))
	}
	for _, f := range exposed {
		issues = append(issues, fmt.Sprintf("sensitive file exposed: %s", f["path"]))
	}

	score := cmsScore(detection, vulns, exposed)

	details := map[string]any{
		"cms_detected":     detection.detected,
		"cms":              detection.name,
		"cms_type":         detection.key,
		"version":          detection.version,
		"confidence":       detection.confidence,
		"vulnerabilities":  vulns,
		"risk_level":       riskLevel,
		"exposed_files":    exposed,
		"plugins":          plugins,
		"outdated_plugins": []string{},
		"issues":           issues,
	}

	kind := scan.OutcomeSuccess
	if !complete {
		kind = scan.OutcomePartialSuccess
		logOrNop(p.Logger).Debug("cms probe ran out of time before finishing secondary checks",
			zap.String("target", target))
	}
	return Report{Kind: kind, SubScore: clamp(score), Details: details}
}

type cmsDetection struct {
	detected   bool
	key        string
	name       string
	version    string
	confidence int
}

// detect scores every signature against the landing page and keeps the best
// match. Path probes run only when the page already gave some signal: two
// path hits add at most 50 points, never enough on their own.
func (p *CMSProber) detect(ctx context.Context, client *http.Client, target string, header http.Header, body string) (cmsDetection, bool) {
	best := cmsDetection{}
	complete := true

	for _, sig := range cmsSignatures {
		confidence := 0
		version := ""

		for name, want := range sig.headers {
			got := header.Get(name)
			if got == "" {
				continue
			}
			if want == "" || strings.Contains(strings.ToLower(got), want) {
				confidence += 20
			}
		}
		for _, re := range sig.meta {
			if m := re.FindStringSubmatch(body); m != nil {
				confidence += 30
				if len(m) > 1 {
					version = m[1]
				}
			}
		}
		for _, re := range sig.patterns {
			if re.MatchString(body) {
				confidence += 15
			}
		}
		if confidence > 0 {
			for _, path := range sig.paths {
				if ctx.Err() != nil {
					complete = false
					break
				}
				if status, ok := probeStatus(ctx, client, target, path); ok && status == http.StatusOK {
					confidence += 25
				}
			}
		}

		if confidence > best.confidence {
			best = cmsDetection{key: sig.key, name: sig.name, version: version, confidence: confidence}
		}
	}

	if best.confidence > 50 {
		best.detected = true
	} else {
		best = cmsDetection{confidence: best.confidence}
	}
	return best, complete
}

func matchVulnerabilities(d cmsDetection) ([]map[string]any, string) {
	vulns := []map[string]any{}
	if !d.detected || d.version == "" {
		return vulns, "low"
	}
	lines, ok := cmsVulnerabilities[d.key]
	if !ok {
		return vulns, "low"
	}

	affected := make([]string, 0, len(lines))
	for line := range lines {
		if versionAtOrBelow(d.version, line) {
			affected = append(affected, line)
		}
	}
	sort.Strings(affected)

	riskLevel := "low"
	for _, line := range affected {
		for _, cve := range lines[line] {
			severity := cveSeverity[cve]
			if severity == "" {
				severity = "medium"
			}
			vulns = append(vulns, map[string]any{
				"id":               cve,
				"severity":         severity,
				"affected_version": line,
			})
			riskLevel = maxSeverity(riskLevel, severity)
		}
	}
	return vulns, riskLevel
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

func maxSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// versionAtOrBelow compares dotted versions numerically, zero-padding the
// shorter one. Unparsable versions are treated as not affected.
func versionAtOrBelow(current, line string) bool {
	cur, err := splitVersion(current)
	if err != nil {
		return false
	}
	ref, err := splitVersion(line)
	if err != nil {
		return false
	}
	for len(cur) < len(ref) {
		cur = append(cur, 0)
	}
	for len(ref) < len(cur) {
		ref = append(ref, 0)
	}
	for i := range cur {
		if cur[i] != ref[i] {
			return cur[i] < ref[i]
		}
	}
	return true
}

func splitVersion(v string) ([]int, error) {
	parts := strings.Split(v, ".")
	nums := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func (p *CMSProber) checkExposedFiles(ctx context.Context, client *http.Client, target, cmsKey string) ([]map[string]any, bool) {
	paths := append([]string{}, genericExposedPaths...)
	paths = append(paths, cmsExposedPaths[cmsKey]...)

	exposed := []map[string]any{}
	for _, path := range paths {
		if ctx.Err() != nil {
			return exposed, false
		}
		body, status, ok := fetchBody(ctx, client, target, path)
		if !ok || status != http.StatusOK {
			continue
		}
		// Soft-404 pages tend to be short or serve the index instead.
		if len(body) <= 100 || strings.Contains(strings.ToLower(firstN(body, 200)), "index") {
			continue
		}
		exposed = append(exposed, map[string]any{
			"path": path,
			"size": len(body),
			"risk": fileRisk(path),
		})
	}
	return exposed, true
}

func fileRisk(path string) string {
	switch {
	case highRiskFiles[path]:
		return "high"
	case mediumRiskFiles[path]:
		return "medium"
	default:
		return "low"
	}
}

// analyzePlugins lists WordPress plugins referenced by the landing page and
// reads each plugin's readme for its stable tag. Capped at ten plugins.
func (p *CMSProber) analyzePlugins(ctx context.Context, client *http.Client, target string, d cmsDetection, body string) ([]map[string]any, bool) {
	plugins := []map[string]any{}
	if d.key != "wordpress" {
		return plugins, true
	}

	seen := map[string]bool{}
	names := []string{}
	for _, m := range wpPluginPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > 10 {
		names = names[:10]
	}

	stableTag := regexp.MustCompile(`Stable tag: ([0-9.]+)`)
	for _, name := range names {
		if ctx.Err() != nil {
			return plugins, false
		}
		version := "unknown"
		readme, status, ok := fetchBody(ctx, client, target, "/wp-content/plugins/"+name+"/readme.txt")
		if ok && status == http.StatusOK {
			if m := stableTag.FindStringSubmatch(readme); m != nil {
				version = m[1]
			}
		}
		plugins = append(plugins, map[string]any{"name": name, "version": version})
	}
	return plugins, true
}

func cmsScore(d cmsDetection, vulns, exposed []map[string]any) int {
	score := 100
	for _, v := range vulns {
		switch v["severity"] {
		case "critical":
			score -= 30
		case "high":
			score -= 20
		case "medium":
			score -= 10
		default:
			score -= 5
		}
	}
	for _, f := range exposed {
		switch f["risk"] {
		case "high":
			score -= 15
		case "medium":
			score -= 10
		default:
			score -= 5
		}
	}
	if d.detected && d.version != "" {
		score += 10
	}
	return score
}

// fetchGet issues a plain GET, unlike fetch which tries HEAD first. CMS
// fingerprinting needs the page body.
func fetchGet(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func probeStatus(ctx context.Context, client *http.Client, target, path string) (int, bool) {
	resp, err := fetchGet(ctx, client, strings.TrimRight(target, "/")+path)
	if err != nil {
		return 0, false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, true
}

func fetchBody(ctx context.Context, client *http.Client, target, path string) (string, int, bool) {
	resp, err := fetchGet(ctx, client, strings.TrimRight(target, "/")+path)
	if err != nil {
		return "", 0, false
	}
	body := readCapped(resp.Body)
	resp.Body.Close()
	return body, resp.StatusCode, true
}

func readCapped(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, constants.RawCaptureLimitBytes))
	return string(data)
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

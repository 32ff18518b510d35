package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

func TestNewDefaultRegistryCoversCatalog(t *testing.T) {
	registry := NewDefaultRegistry(nil)

	got := registry.Types()
	want := scan.AllProbeTypes()

	if len(got) != len(want) {
		t.Fatalf("Expected %d registered probers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected type %s at position %d, got %s", want[i], i, got[i])
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewDefaultRegistry(nil)

	prober, ok := registry.Lookup(scan.ProbeSSL)
	if !ok {
		t.Fatal("Expected ssl prober to be registered")
	}
	if prober.Type() != scan.ProbeSSL {
		t.Errorf("Expected prober type ssl, got %s", prober.Type())
	}

	if _, ok := NewRegistry().Lookup(scan.ProbeSSL); ok {
		t.Error("Expected empty registry to have no ssl prober")
	}
}

func TestSanitizeDetailsScrubsControlCharacters(t *testing.T) {
	details := SanitizeDetails(map[string]any{
		"note":  "line1\nline2\x00end",
		"count": 3,
		"flag":  true,
	})

	if details["note"] != "line1line2end" {
		t.Errorf("Expected control characters stripped, got %q", details["note"])
	}
	if details["count"] != 3 {
		t.Errorf("Expected count untouched, got %v", details["count"])
	}
	if details["flag"] != true {
		t.Errorf("Expected flag untouched, got %v", details["flag"])
	}
}

func TestSanitizeDetailsCapsStrings(t *testing.T) {
	long := strings.Repeat("a", constants.DetailStringLimit+100)

	details := SanitizeDetails(map[string]any{"value": long})

	got, ok := details["value"].(string)
	if !ok {
		t.Fatalf("Expected string value, got %T", details["value"])
	}
	if len(got) != constants.DetailStringLimit {
		t.Errorf("Expected string capped at %d, got %d", constants.DetailStringLimit, len(got))
	}
}

func TestSanitizeDetailsCapsLists(t *testing.T) {
	items := make([]any, constants.DetailListLimit+10)
	for i := range items {
		items[i] = i
	}
	names := make([]string, constants.DetailListLimit+5)
	for i := range names {
		names[i] = "n"
	}

	details := SanitizeDetails(map[string]any{"items": items, "names": names})

	if got := len(details["items"].([]any)); got != constants.DetailListLimit {
		t.Errorf("Expected list capped at %d, got %d", constants.DetailListLimit, got)
	}
	if got := len(details["names"].([]string)); got != constants.DetailListLimit {
		t.Errorf("Expected string list capped at %d, got %d", constants.DetailListLimit, got)
	}
}

func TestSanitizeDetailsNestedValues(t *testing.T) {
	details := SanitizeDetails(map[string]any{
		"nested": map[string]any{"inner": "a\x01b"},
		"rows":   []map[string]any{{"cell": "x\x02y"}},
	})

	nested := details["nested"].(map[string]any)
	if nested["inner"] != "ab" {
		t.Errorf("Expected nested string scrubbed, got %q", nested["inner"])
	}
	rows := details["rows"].([]map[string]any)
	if rows[0]["cell"] != "xy" {
		t.Errorf("Expected row cell scrubbed, got %q", rows[0]["cell"])
	}
}

func TestSanitizeDetailsFormatsUnknownTypes(t *testing.T) {
	details := SanitizeDetails(map[string]any{"odd": uint(7)})

	if details["odd"] != "7" {
		t.Errorf("Expected unknown type formatted as string, got %v (%T)", details["odd"], details["odd"])
	}
}

func TestSanitizeDetailsNil(t *testing.T) {
	if got := SanitizeDetails(nil); got != nil {
		t.Errorf("Expected nil in, nil out, got %v", got)
	}
}

func TestScrubText(t *testing.T) {
	if got := ScrubText("ok\x7fdone\r\n"); got != "okdone" {
		t.Errorf("Expected scrubbed text, got %q", got)
	}
}

func TestFailureKindMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want scan.OutcomeKind
	}{
		{"deadline exceeded", fmt.Errorf("fetch: %w", context.DeadlineExceeded), scan.OutcomeTimeout},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, scan.OutcomeTimeout},
		{"plain error", errors.New("connection refused"), scan.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := failure(tt.err, map[string]any{"https": true})
			if report.Kind != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, report.Kind)
			}
			if report.Err == "" {
				t.Error("Expected error text to be captured")
			}
			if report.Details["https"] != true {
				t.Error("Expected details to be preserved")
			}
		})
	}
}

func TestTargetEndpoint(t *testing.T) {
	tests := []struct {
		target  string
		scheme  string
		host    string
		addr    string
		wantErr bool
	}{
		{"https://example.com", "https", "example.com", "example.com:443", false},
		{"http://example.com", "http", "example.com", "example.com:80", false},
		{"https://example.com:8443/path", "https", "example.com", "example.com:8443", false},
		{"http://[::1]:8080", "http", "::1", "[::1]:8080", false},
		{"https://", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			scheme, host, addr, err := targetEndpoint(tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if scheme != tt.scheme || host != tt.host || addr != tt.addr {
				t.Errorf("Expected (%s, %s, %s), got (%s, %s, %s)",
					tt.scheme, tt.host, tt.addr, scheme, host, addr)
			}
		})
	}
}

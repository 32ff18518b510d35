package scan

import (
	"fmt"
	"strings"

	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// ProbeType identifies one security probe category. The catalog is closed:
// every type is known at compile time so the scoring weight table can be
// checked for exhaustiveness.
type ProbeType string

const (
	ProbeSSL     ProbeType = "ssl"
	ProbePorts   ProbeType = "ports"
	ProbeHeaders ProbeType = "headers"
	ProbeCMS     ProbeType = "cms"
	ProbeDDoS    ProbeType = "ddos"
)

// probeCatalog fixes the declaration order used for recommendation ordering
// and every other deterministic traversal of probe types.
var probeCatalog = []ProbeType{ProbeSSL, ProbePorts, ProbeHeaders, ProbeCMS, ProbeDDoS}

// probeWeights are the relative weights of the full catalog. They sum to 1.0;
// the scoring engine renormalizes over the probes that actually reported.
var probeWeights = map[ProbeType]float64{
	ProbeSSL:     0.25,
	ProbePorts:   0.20,
	ProbeHeaders: 0.25,
	ProbeCMS:     0.20,
	ProbeDDoS:    0.10,
}

// AllProbeTypes returns the full catalog in declaration order.
func AllProbeTypes() []ProbeType {
	out := make([]ProbeType, len(probeCatalog))
	copy(out, probeCatalog)
	return out
}

// IsValid reports whether t names a catalog probe type.
func (t ProbeType) IsValid() bool {
	_, ok := probeWeights[t]
	return ok
}

// Weight returns the catalog weight of t, or 0 for an unknown type.
func (t ProbeType) Weight() float64 {
	return probeWeights[t]
}

func (t ProbeType) String() string {
	return string(t)
}

// ParseProbeTypes normalizes raw tags into catalog probe types. Tags are
// trimmed, lower-cased, and de-duplicated; the result follows catalog order
// regardless of input order. An unrecognized tag fails the whole parse.
func ParseProbeTypes(tags []string) ([]ProbeType, error) {
	requested := make(map[ProbeType]bool, len(tags))
	for _, tag := range tags {
		t := ProbeType(strings.ToLower(strings.TrimSpace(tag)))
		if t == "" {
			continue
		}
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: %q", sharederrors.ErrUnknownProbeType, tag)
		}
		requested[t] = true
	}

	out := make([]ProbeType, 0, len(requested))
	for _, t := range probeCatalog {
		if requested[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

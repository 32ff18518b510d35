package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// Cipher suites that should not be negotiated (RC4, 3DES, CBC without AEAD).
var weakCipherSuites = map[uint16]bool{
	tls.TLS_RSA_WITH_RC4_128_SHA:            true,
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:       true,
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:        true,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:        true,
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:    true,
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:      true,
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA: true,
}

// AEAD suites considered strong for TLS 1.2/1.3.
var strongCipherSuites = map[uint16]bool{
	tls.TLS_AES_128_GCM_SHA256:                  true,
	tls.TLS_AES_256_GCM_SHA384:                  true,
	tls.TLS_CHACHA20_POLY1305_SHA256:            true,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
}

// SSLProber inspects the target's transport security: certificate health,
// negotiated protocol and cipher, and whether legacy protocol versions are
// still offered. Plain-HTTP targets are scored on HTTPS availability alone.
type SSLProber struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

func (p *SSLProber) Type() scan.ProbeType { return scan.ProbeSSL }

func (p *SSLProber) Probe(ctx context.Context, target string) Report {
	scheme, host, addr, err := targetEndpoint(target)
	if err != nil {
		return Report{Kind: scan.OutcomeFailure, Err: err.Error()}
	}
	if scheme != "https" {
		return p.probePlainHTTP(ctx, target)
	}

	state, trusted, err := p.handshake(ctx, host, addr)
	if err != nil {
		return failure(fmt.Errorf("tls handshake: %w", err), map[string]any{"https": true})
	}

	details := map[string]any{"https": true, "cert_trusted": trusted}
	issues := []string{}
	score := 20

	// Certificate block, up to 30.
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		days := int(time.Until(cert.NotAfter).Hours() / 24)
		expired := time.Now().After(cert.NotAfter)
		expiresSoon := !expired && time.Until(cert.NotAfter) < constants.TLSSoonExpiryWindow
		selfSigned := cert.Subject.String() == cert.Issuer.String()
		keyBits := publicKeyBits(cert)

		details["subject"] = cert.Subject.String()
		details["issuer"] = cert.Issuer.String()
		details["not_before"] = cert.NotBefore.Format(time.RFC3339)
		details["not_after"] = cert.NotAfter.Format(time.RFC3339)
		details["days_until_expiry"] = days
		details["expired"] = expired
		details["expires_soon"] = expiresSoon
		details["self_signed"] = selfSigned
		details["key_bits"] = keyBits
		details["signature_algorithm"] = cert.SignatureAlgorithm.String()

		if expired {
			issues = append(issues, "certificate has expired")
		} else {
			score += 10
		}
		if selfSigned {
			issues = append(issues, "self-signed certificate")
		} else {
			score += 10
		}
		if keyBits >= 2048 || isECKey(cert) {
			score += 5
		} else if keyBits > 0 {
			issues = append(issues, fmt.Sprintf("weak public key: %d bits", keyBits))
		}
		if expiresSoon {
			issues = append(issues, fmt.Sprintf("certificate expires in %d days", days))
		} else if !expired {
			score += 5
		}
	}

	// Protocol block, up to 30.
	details["tls_version"] = tlsVersionName(state.Version)
	switch state.Version {
	case tls.VersionTLS13:
		score += 15
	case tls.VersionTLS12:
		score += 10
	default:
		issues = append(issues, fmt.Sprintf("negotiated legacy protocol %s", tlsVersionName(state.Version)))
	}

	weak, legacyChecked := p.legacyProtocols(ctx, host, addr)
	details["weak_protocols"] = weak
	switch len(weak) {
	case 0:
		score += 15
	case 1:
		score += 10
	case 2:
		score += 5
	}
	for _, proto := range weak {
		issues = append(issues, fmt.Sprintf("legacy protocol %s is still offered", proto))
	}

	// Cipher block, up to 20.
	suite := state.CipherSuite
	details["cipher_suite"] = tls.CipherSuiteName(suite)
	if weakCipherSuites[suite] {
		issues = append(issues, fmt.Sprintf("weak cipher suite %s", tls.CipherSuiteName(suite)))
	} else {
		if strongCipherSuites[suite] {
			score += 15
		} else {
			score += 10
		}
		score += 5
	}

	details["issues"] = issues

	kind := scan.OutcomeSuccess
	if !legacyChecked {
		kind = scan.OutcomePartialSuccess
	}
	return Report{Kind: kind, SubScore: min(score, 100), Details: details}
}

// probePlainHTTP scores an http:// target on whether HTTPS exists and whether
// traffic is redirected to it.
func (p *SSLProber) probePlainHTTP(ctx context.Context, target string) Report {
	client := newHTTPClient(p.Timeout, false)
	details := map[string]any{"https": false}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Report{Kind: scan.OutcomeFailure, Err: err.Error(), Details: details}
	}
	resp, err := client.Do(req)
	if err != nil {
		return failure(fmt.Errorf("fetch target: %w", err), details)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	redirected := false
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusPermanentRedirect:
		redirected = strings.HasPrefix(resp.Header.Get("Location"), "https://")
	}

	available := redirected
	if !available {
		available = p.httpsReachable(ctx, target)
	}

	details["https_available"] = available
	details["https_redirect"] = redirected

	score := 0
	issues := []string{}
	switch {
	case redirected:
		score = 20
	case available:
		issues = append(issues, "HTTP traffic is not redirected to HTTPS")
	default:
		issues = append(issues, "site is served over unencrypted HTTP", "no HTTPS endpoint available")
	}
	details["issues"] = issues

	return Report{Kind: scan.OutcomeSuccess, SubScore: score, Details: details}
}

func (p *SSLProber) httpsReachable(ctx context.Context, target string) bool {
	httpsTarget := "https://" + strings.TrimPrefix(target, "http://")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, httpsTarget, nil)
	if err != nil {
		return false
	}
	resp, err := newHTTPClient(p.Timeout, false).Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// handshake connects with certificate verification on, and on an untrusted
// chain retries without verification so the certificate can still be
// inspected. The second return value reports whether the chain verified.
func (p *SSLProber) handshake(ctx context.Context, host, addr string) (*tls.ConnectionState, bool, error) {
	state, err := p.dialTLS(ctx, addr, &tls.Config{ServerName: host})
	if err == nil {
		return state, true, nil
	}

	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	if !errors.As(err, &certErr) && !errors.As(err, &hostErr) {
		return nil, false, err
	}

	logOrNop(p.Logger).Debug("certificate chain not trusted, inspecting without verification",
		zap.String("host", host), zap.Error(err))

	state, err = p.dialTLS(ctx, addr, &tls.Config{ServerName: host, InsecureSkipVerify: true})
	if err != nil {
		return nil, false, err
	}
	return state, false, nil
}

func (p *SSLProber) dialTLS(ctx context.Context, addr string, cfg *tls.Config) (*tls.ConnectionState, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.Timeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	state := conn.(*tls.Conn).ConnectionState()
	return &state, nil
}

// legacyProtocols checks whether the server still accepts TLS 1.0 or 1.1.
// The second return value is false when the context ran out before both
// versions could be tried.
func (p *SSLProber) legacyProtocols(ctx context.Context, host, addr string) ([]string, bool) {
	legacy := []struct {
		name    string
		version uint16
	}{
		{"TLS 1.0", tls.VersionTLS10},
		{"TLS 1.1", tls.VersionTLS11},
	}

	offered := []string{}
	for _, l := range legacy {
		if ctx.Err() != nil {
			return offered, false
		}
		cfg := &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
			MinVersion:         l.version,
			MaxVersion:         l.version,
		}
		if _, err := p.dialTLS(ctx, addr, cfg); err == nil {
			offered = append(offered, l.name)
		}
	}
	return offered, true
}

func publicKeyBits(cert *x509.Certificate) int {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return pub.N.BitLen()
	case *ecdsa.PublicKey:
		return pub.Curve.Params().BitSize
	case ed25519.PublicKey:
		return len(pub) * 8
	}
	return 0
}

// isECKey reports whether the certificate key is elliptic, where far fewer
// bits carry RSA-2048 equivalent strength.
func isECKey(cert *x509.Certificate) bool {
	switch cert.PublicKey.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return true
	}
	return false
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", version)
	}
}

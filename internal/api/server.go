// Package api exposes the scan engine over HTTP. The server is a plain
// http.Handler: transport concerns (request IDs, logging, rate limiting,
// CORS, auth) live in the middleware chain, domain errors are mapped onto
// status codes at the handler boundary.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jalal-stack/cyberaudit/internal/api/middleware"
	"github.com/jalal-stack/cyberaudit/internal/certificate"
	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// ScanRequest is the submission payload. A nil scan_types field requests the
// full probe catalog; an explicitly empty list is rejected.
type ScanRequest struct {
	URL       string   `json:"url"`
	ScanTypes []string `json:"scan_types"`
	Language  string   `json:"language"`
}

// ScanAccepted acknowledges an accepted submission.
type ScanAccepted struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

// ProbeResult is one probe's slice of a job snapshot.
type ProbeResult struct {
	Result   string         `json:"result"`
	SubScore *int           `json:"sub_score,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// JobResponse is the export shape of one scan job. Score, level,
// recommendations, and eligibility appear once the job is terminal.
type JobResponse struct {
	ScanID              string                 `json:"scan_id"`
	URL                 string                 `json:"url"`
	Language            string                 `json:"language"`
	Status              string                 `json:"status"`
	ScanTypes           []string               `json:"scan_types"`
	CreatedAt           time.Time              `json:"created_at"`
	StartedAt           *time.Time             `json:"started_at,omitempty"`
	CompletedAt         *time.Time             `json:"completed_at,omitempty"`
	Score               *int                   `json:"score,omitempty"`
	SecurityLevel       string                 `json:"security_level,omitempty"`
	Results             map[string]ProbeResult `json:"results,omitempty"`
	Recommendations     []string               `json:"recommendations,omitempty"`
	CertificateEligible *bool                  `json:"certificate_eligible,omitempty"`
}

// ScoreDistribution buckets terminal scores for the stats endpoint.
type ScoreDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// SystemStatus reports component health; queue counts non-terminal jobs.
type SystemStatus struct {
	APIServer string `json:"api_server"`
	Store     string `json:"store"`
	Scanners  string `json:"scanners"`
	Queue     int    `json:"queue"`
}

// StatsResponse aggregates store-wide counters.
type StatsResponse struct {
	TotalScans         int               `json:"total_scans"`
	SuccessfulScans    int               `json:"successful_scans"`
	CertificatesIssued int               `json:"certificates_issued"`
	ActiveUsers        int               `json:"active_users"`
	ScoreDistribution  ScoreDistribution `json:"score_distribution"`
	SystemStatus       SystemStatus      `json:"system_status"`
}

// ScanService is the application surface the HTTP layer drives.
type ScanService interface {
	StartScan(ctx context.Context, target string, probeTags []string, locale string) (string, error)
	GetJob(ctx context.Context, id string) (*scan.Job, error)
	ListJobs(ctx context.Context) ([]*scan.Job, error)
	IssueCertificate(ctx context.Context, id string) (*scan.Job, *scan.Certificate, error)
	BuildReport(ctx context.Context, id string) (*certificate.Report, error)
}

type Config struct {
	Scans       ScanService
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	handler  http.Handler
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	// Middleware chain: RequestID -> Logging -> RateLimit -> CORS -> Handler
	srv.handler = middleware.RequestID(srv.withLogging(srv.withRateLimit(srv.withCORS(srv.mux))))
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Liveness stays outside the auth gate so probes work without the token.
	s.mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))

	s.mux.Handle("/api/scan", s.withAuth(http.HandlerFunc(s.handleScans)))
	s.mux.Handle("/api/scan/", s.withAuth(http.HandlerFunc(s.handleScanByID)))
	s.mux.Handle("/api/certificate/", s.withAuth(http.HandlerFunc(s.handleCertificate)))
	s.mux.Handle("/api/report/", s.withAuth(http.HandlerFunc(s.handleReport)))
	s.mux.Handle("/api/stats", s.withAuth(http.HandlerFunc(s.handleStats)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 25
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		jobs, err := s.cfg.Scans.ListJobs(r.Context())
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		if len(jobs) > limit {
			jobs = jobs[:limit]
		}
		items := make([]JobResponse, 0, len(jobs))
		for _, job := range jobs {
			items = append(items, JobResponseFor(job))
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 1048576) // 1MB limit
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		if req.ScanTypes == nil {
			req.ScanTypes = probeTags(scan.AllProbeTypes())
		}
		id, err := s.cfg.Scans.StartScan(r.Context(), req.URL, req.ScanTypes, req.Language)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ScanAccepted{ScanID: id, Status: string(scan.StatusPending)})
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/scan/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	job, err := s.cfg.Scans.GetJob(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponseFor(job))
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/certificate/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	job, cert, err := s.cfg.Scans.IssueCertificate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "pdf" {
		data, err := certificate.RenderCertificatePDF(job, cert)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		s.writePDF(w, fmt.Sprintf("certificate-%s.pdf", id), data)
		return
	}
	writeJSON(w, http.StatusOK, certificate.PayloadFor(job, cert))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/report/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	report, err := s.cfg.Scans.BuildReport(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "pdf" {
		data, err := certificate.RenderReportPDF(report)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		s.writePDF(w, fmt.Sprintf("report-%s.pdf", id), data)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	jobs, err := s.cfg.Scans.ListJobs(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsFor(jobs))
}

// JobResponseFor flattens a job snapshot into the export shape.
func JobResponseFor(job *scan.Job) JobResponse {
	resp := JobResponse{
		ScanID:    job.ID(),
		URL:       job.Target(),
		Language:  job.Locale(),
		Status:    string(job.Status()),
		ScanTypes: probeTags(job.ProbeTypes()),
		CreatedAt: job.CreatedAt(),
	}
	if at := job.StartedAt(); !at.IsZero() {
		resp.StartedAt = &at
	}
	if at := job.CompletedAt(); !at.IsZero() {
		resp.CompletedAt = &at
	}
	outcomes := job.Outcomes()
	if len(outcomes) > 0 {
		resp.Results = make(map[string]ProbeResult, len(outcomes))
		for t, outcome := range outcomes {
			resp.Results[string(t)] = probeResultFor(outcome)
		}
	}
	if composite := job.Composite(); composite != nil {
		score := composite.Score()
		eligible := score >= constants.CertificateEligibleScore
		resp.Score = &score
		resp.SecurityLevel = string(composite.Level())
		resp.Recommendations = composite.Recommendations()
		resp.CertificateEligible = &eligible
	}
	return resp
}

func probeResultFor(outcome *scan.ProbeOutcome) ProbeResult {
	result := ProbeResult{
		Result:  string(outcome.Kind()),
		Details: outcome.Details(),
		Error:   outcome.Error(),
	}
	if score, ok := outcome.SubScore(); ok {
		result.SubScore = &score
	}
	return result
}

func probeTags(types []scan.ProbeType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// StatsFor derives the dashboard counters from a job listing. Everything is
// a pure query over the store snapshot; nothing keeps running counters.
func StatsFor(jobs []*scan.Job) StatsResponse {
	stats := StatsResponse{
		SystemStatus: SystemStatus{
			APIServer: "operational",
			Store:     "operational",
			Scanners:  "operational",
		},
	}
	hosts := make(map[string]struct{})
	for _, job := range jobs {
		stats.TotalScans++
		hosts[job.TargetHost()] = struct{}{}
		switch job.Status() {
		case scan.StatusCompleted, scan.StatusPartialFailure:
			stats.SuccessfulScans++
		case scan.StatusPending, scan.StatusRunning:
			stats.SystemStatus.Queue++
		}
		if job.Certificate() != nil {
			stats.CertificatesIssued++
		}
		if composite := job.Composite(); composite != nil {
			switch {
			case composite.Score() >= 80:
				stats.ScoreDistribution.High++
			case composite.Score() >= 60:
				stats.ScoreDistribution.Medium++
			default:
				stats.ScoreDistribution.Low++
			}
		}
	}
	stats.ActiveUsers = len(hosts)
	return stats
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// Use first IP in the X-Forwarded-For chain
			if idx := strings.Index(forwarded, ","); idx > 0 {
				clientIP = strings.TrimSpace(forwarded[:idx])
			} else {
				clientIP = strings.TrimSpace(forwarded)
			}
		}
		if idx := strings.LastIndex(clientIP, ":"); idx > 0 {
			clientIP = clientIP[:idx]
		}

		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			if s.cfg.Logger != nil {
				s.requestLogger(r).Warn("rate_limit_exceeded",
					zap.String("client_ip", clientIP),
				)
			}
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and
// bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil && s.cfg.Logger != nil {
		s.cfg.Logger.Error("failed to write response", zap.Error(err))
	}
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sharederrors.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, sharederrors.ErrJobNotTerminal):
		return http.StatusConflict
	case errors.Is(err, sharederrors.ErrInvalidTarget),
		errors.Is(err, sharederrors.ErrEmptyProbeSet),
		errors.Is(err, sharederrors.ErrUnknownProbeType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()

	// 5xx details are logged server-side, never returned to the client.
	if status >= 500 {
		if s.cfg.Logger != nil {
			s.requestLogger(r).Error("internal_server_error",
				zap.Error(err),
				zap.Int("status", status),
			)
		}
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup
type rateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter),
	}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[ip]
	if !exists {
		limiter = &ipLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rps), burst),
			lastSeen: time.Now(),
		}
		m.limiters[ip] = limiter
	} else {
		limiter.lastSeen = time.Now()
	}

	return limiter.limiter
}

// cleanupLoop removes limiters that haven't been used in 5 minutes
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		for ip, limiter := range m.limiters {
			if time.Since(limiter.lastSeen) > 5*time.Minute {
				delete(m.limiters, ip)
			}
		}
		m.mu.Unlock()
	}
}

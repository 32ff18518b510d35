package probe

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
)

// defaultSweepPorts are the commonly exposed services worth a connect probe.
var defaultSweepPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 143, 443, 993, 995,
	1433, 3306, 3389, 5432, 6379, 27017,
}

var portServices = map[int]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	143:   "imap",
	443:   "https",
	993:   "imaps",
	995:   "pop3s",
	1433:  "mssql",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "https-alt",
	27017: "mongodb",
}

type portRiskInfo struct {
	risk   string
	reason string
}

// dangerousPorts lists services that should not face the internet at all.
var dangerousPorts = map[int]portRiskInfo{
	21:    {"high", "unencrypted file transfer"},
	23:    {"critical", "unencrypted remote access"},
	25:    {"medium", "mail relay exposure"},
	110:   {"medium", "unencrypted mail retrieval"},
	143:   {"medium", "unencrypted mail retrieval"},
	1433:  {"high", "database reachable from the internet"},
	3306:  {"high", "database reachable from the internet"},
	3389:  {"high", "remote desktop reachable from the internet"},
	5432:  {"high", "database reachable from the internet"},
	6379:  {"critical", "datastore commonly runs unauthenticated"},
	27017: {"high", "database reachable from the internet"},
}

// safePorts are expected on any web host and carry no deduction.
var safePorts = map[int]bool{22: true, 53: true, 80: true, 443: true}

// PortsProber sweeps common TCP ports with short connect attempts and scores
// the exposure of whatever answers.
type PortsProber struct {
	DialTimeout time.Duration
	Workers     int
	Ports       []int
	Logger      *zap.Logger
}

func (p *PortsProber) Type() scan.ProbeType { return scan.ProbePorts }

func (p *PortsProber) Probe(ctx context.Context, target string) Report {
	_, host, _, err := targetEndpoint(target)
	if err != nil {
		return Report{Kind: scan.OutcomeFailure, Err: err.Error()}
	}

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return failure(fmt.Errorf("resolve %s: %w", host, err), nil)
	}
	ip := ips[0]

	ports := p.Ports
	if len(ports) == 0 {
		ports = defaultSweepPorts
	}

	open, complete := p.sweep(ctx, ip, ports)
	sort.Ints(open)

	openDetails := []map[string]any{}
	dangerous := []map[string]any{}
	issues := []string{}
	score := 100

	for _, port := range open {
		service := serviceName(port)
		risk, reason, isDangerous := classifyPort(port)
		openDetails = append(openDetails, map[string]any{
			"port": port, "service": service, "risk": risk,
		})
		if !isDangerous {
			continue
		}
		dangerous = append(dangerous, map[string]any{
			"port": port, "service": service, "risk": risk, "reason": reason,
		})
		issues = append(issues, fmt.Sprintf("open %s-risk port %d (%s)", risk, port, service))
		switch risk {
		case "critical":
			score -= 25
		case "high":
			score -= 15
		case "medium":
			score -= 10
		default:
			score -= 5
		}
	}

	if len(open) > 10 {
		score -= 10
	} else if len(open) > 5 {
		score -= 5
	}
	if len(dangerous) == 0 && len(open) <= 3 {
		score += 10
	}

	details := map[string]any{
		"ip_address":          ip,
		"total_ports_scanned": len(ports),
		"open_ports":          openDetails,
		"dangerous_ports":     dangerous,
		"issues":              issues,
	}

	kind := scan.OutcomeSuccess
	if !complete {
		kind = scan.OutcomePartialSuccess
		logOrNop(p.Logger).Debug("port sweep interrupted before covering all ports",
			zap.String("host", host), zap.Int("covered", len(open)))
	}
	return Report{Kind: kind, SubScore: clamp(score), Details: details}
}

// sweep runs connect attempts through a bounded worker pool. The second
// return value is false when the context expired before every port was tried.
func (p *PortsProber) sweep(ctx context.Context, ip string, ports []int) ([]int, bool) {
	workers := p.Workers
	if workers <= 0 {
		workers = 10
	}
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	portChan := make(chan int, len(ports))
	var aborted atomic.Bool
	go func() {
		defer close(portChan)
		for _, port := range ports {
			select {
			case portChan <- port:
			case <-ctx.Done():
				aborted.Store(true)
				return
			}
		}
	}()

	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dialer := &net.Dialer{Timeout: timeout}
			for port := range portChan {
				conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
				if err != nil {
					if ctx.Err() != nil {
						aborted.Store(true)
					}
					continue
				}
				conn.Close()
				mu.Lock()
				open = append(open, port)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return open, !aborted.Load()
}

func serviceName(port int) string {
	if service, ok := portServices[port]; ok {
		return service
	}
	return "unknown"
}

func classifyPort(port int) (risk, reason string, dangerous bool) {
	if info, ok := dangerousPorts[port]; ok {
		return info.risk, info.reason, true
	}
	if safePorts[port] {
		return "low", "", false
	}
	return "medium", "unexpected open port", true
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

package health

import (
	"context"
	"sort"
	"time"
)

// Pinger is any dependency that can report liveness, such as *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewService constructs a health service. Nil pingers are ignored so callers
// can pass optional dependencies directly.
func NewService(checks map[string]Pinger) *Service {
	s := &Service{checks: map[string]Pinger{}, timeout: 2 * time.Second}
	for name, p := range checks {
		if p != nil {
			s.checks[name] = p
		}
	}
	return s
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status pings every registered dependency.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true}
	if len(s.checks) == 0 {
		return report
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report.Checks = make(map[string]string, len(names))
	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.checks[name].PingContext(pingCtx)
		cancel()
		if err != nil {
			report.OK = false
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}

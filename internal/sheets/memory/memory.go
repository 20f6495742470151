package memory

import (
	"context"
	"fmt"
	"sync"

	"cambista/internal/core"
	"cambista/internal/report"
	"cambista/internal/sheets"
)

// Store keeps the last exported report per period.
type Store struct {
	mu      sync.Mutex
	reports map[core.Period]report.Report
	writes  int
}

var _ sheets.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{reports: make(map[core.Period]report.Report)}
}

// WriteMonthlyReport replaces the stored report for r.Period.
func (s *Store) WriteMonthlyReport(_ context.Context, r report.Report) (string, error) {
	if err := r.Period.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Period] = r
	s.writes++
	return fmt.Sprintf("mem:%s", r.Period), nil
}

// Report returns the last report written for p.
func (s *Store) Report(p core.Period) (report.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[p]
	return r, ok
}

// Writes counts every WriteMonthlyReport call.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

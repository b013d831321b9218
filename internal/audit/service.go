package audit

import (
	"context"
	"time"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
)

// GatePort authorizes operations against the caller's permissions.
type GatePort interface {
	Check(ctx context.Context, principal rbac.Principal, required string) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
	defaultRange    = 7 * 24 * time.Hour
	maxRange        = 90 * 24 * time.Hour
)

// Service serves the audit timeline.
type Service struct {
	repo RepositoryPort
	gate GatePort
	now  func() time.Time
}

// NewService constructs a service.
func NewService(repo RepositoryPort, gate GatePort) *Service {
	return &Service{repo: repo, gate: gate, now: time.Now}
}

// normalize clamps paging and the date range so one request can never
// drag an unbounded window out of the table.
func (s *Service) normalize(filters Filters) Filters {
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	now := s.now()
	if filters.To.IsZero() {
		filters.To = now
	}
	if filters.From.IsZero() {
		filters.From = filters.To.Add(-defaultRange)
	}
	if filters.To.Sub(filters.From) > maxRange {
		filters.From = filters.To.Add(-maxRange)
	}
	return filters
}

// Timeline returns one page of audit entries.
func (s *Service) Timeline(ctx context.Context, principal rbac.Principal, filters Filters) (Result, error) {
	if err := s.gate.Check(ctx, principal, shared.PermAuditView); err != nil {
		return Result{}, err
	}
	filters = s.normalize(filters)
	offset := (filters.Page - 1) * filters.PageSize
	rows, err := s.repo.Window(ctx, filters, filters.PageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > filters.PageSize
	if hasNext {
		rows = rows[:filters.PageSize]
	}
	return Result{
		Entries: rows,
		Paging:  Paging{Page: filters.Page, PageSize: filters.PageSize, HasNext: hasNext},
	}, nil
}

// Export returns every entry in the filtered window.
func (s *Service) Export(ctx context.Context, principal rbac.Principal, filters Filters) ([]Entry, error) {
	if err := s.gate.Check(ctx, principal, shared.PermAuditView); err != nil {
		return nil, err
	}
	return s.repo.All(ctx, s.normalize(filters))
}

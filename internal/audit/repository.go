package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	All(ctx context.Context, filters Filters) ([]Entry, error)
}

// Repository reads the audit_logs table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const entryQuery = `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta
	 FROM audit_logs a
	 LEFT JOIN admin_users u ON u.id = a.actor_id`

func buildWhere(filters Filters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("a.occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("a.occurred_at < $%d", filters.To)
	}
	if filters.ActorID != 0 {
		add("a.actor_id = $%d", filters.ActorID)
	}
	if filters.Entity != "" {
		add("a.entity = $%d", filters.Entity)
	}
	if filters.Action != "" {
		add("a.action = $%d", filters.Action)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *Repository) query(ctx context.Context, sql string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ActorEmail, &e.Action, &e.Entity, &e.EntityID, &e.Meta); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Window returns one page of entries, newest first.
func (r *Repository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	where, args := buildWhere(filters)
	sql := entryQuery + where + fmt.Sprintf(" ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return r.query(ctx, sql, args)
}

// All returns every matching entry, newest first.
func (r *Repository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	where, args := buildWhere(filters)
	return r.query(ctx, entryQuery+where+" ORDER BY a.occurred_at DESC, a.id DESC", args)
}

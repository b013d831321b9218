package aging

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts signal persistence for the service.
type RepositoryPort interface {
	Upsert(ctx context.Context, s Signal) error
	DeleteExcept(ctx context.Context, candidateIDs []int64) error
	List(ctx context.Context, color *Color) ([]Signal, error)
	Get(ctx context.Context, id int64) (Signal, error)
	Summarize(ctx context.Context) (Summary, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkAllRead(ctx context.Context) (int, error)
	Dismiss(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const signalColumns = `id, candidate_id, candidate_name, phone, stage, stage_entered_at, days_in_stage, color, message, is_read, is_dismissed, created_at, updated_at`

func scanSignal(row pgx.Row) (Signal, error) {
	var s Signal
	err := row.Scan(
		&s.ID, &s.CandidateID, &s.CandidateName, &s.Phone, &s.Stage, &s.StageEnteredAt,
		&s.DaysInStage, &s.Color, &s.Message, &s.Read, &s.Dismissed, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Upsert writes a candidate's signal. A signal for the same stage stay keeps
// its read and dismissed flags; moving to a new stage (or re-entering one)
// resets both so the candidate surfaces again.
func (r *Repository) Upsert(ctx context.Context, s Signal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO aging_signals (candidate_id, candidate_name, phone, stage, stage_entered_at, days_in_stage, color, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (candidate_id) DO UPDATE SET
			candidate_name = EXCLUDED.candidate_name,
			phone = EXCLUDED.phone,
			days_in_stage = EXCLUDED.days_in_stage,
			color = EXCLUDED.color,
			message = EXCLUDED.message,
			is_read = CASE
				WHEN aging_signals.stage = EXCLUDED.stage AND aging_signals.stage_entered_at = EXCLUDED.stage_entered_at
				THEN aging_signals.is_read ELSE FALSE END,
			is_dismissed = CASE
				WHEN aging_signals.stage = EXCLUDED.stage AND aging_signals.stage_entered_at = EXCLUDED.stage_entered_at
				THEN aging_signals.is_dismissed ELSE FALSE END,
			stage = EXCLUDED.stage,
			stage_entered_at = EXCLUDED.stage_entered_at,
			updated_at = NOW()`,
		s.CandidateID, s.CandidateName, s.Phone, s.Stage, s.StageEnteredAt, s.DaysInStage, s.Color, s.Message,
	)
	return err
}

// DeleteExcept removes signals for candidates that are no longer in an aging
// relevant stage.
func (r *Repository) DeleteExcept(ctx context.Context, candidateIDs []int64) error {
	if len(candidateIDs) == 0 {
		_, err := r.pool.Exec(ctx, `DELETE FROM aging_signals`)
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM aging_signals WHERE NOT (candidate_id = ANY($1))`, candidateIDs)
	return err
}

// List returns non-dismissed signals, most urgent first, optionally filtered
// by color.
func (r *Repository) List(ctx context.Context, color *Color) ([]Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM aging_signals WHERE NOT is_dismissed`
	args := []any{}
	if color != nil {
		query += ` AND color = $1`
		args = append(args, *color)
	}
	query += ` ORDER BY days_in_stage DESC, candidate_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get fetches a signal by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Signal, error) {
	s, err := scanSignal(r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM aging_signals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Signal{}, ErrNotFound
		}
		return Signal{}, err
	}
	return s, nil
}

// Summarize aggregates non-dismissed signals per color.
func (r *Repository) Summarize(ctx context.Context) (Summary, error) {
	rows, err := r.pool.Query(ctx, `SELECT color, COUNT(*) FROM aging_signals WHERE NOT is_dismissed GROUP BY color`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	var sum Summary
	for rows.Next() {
		var color Color
		var count int
		if err := rows.Scan(&color, &count); err != nil {
			return Summary{}, err
		}
		switch color {
		case ColorGreen:
			sum.Green = count
		case ColorAmber:
			sum.Amber = count
		case ColorRed:
			sum.Red = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	sum.Total = sum.Green + sum.Amber + sum.Red
	return sum, nil
}

// UnreadCount counts signals not yet seen and not dismissed.
func (r *Repository) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM aging_signals WHERE NOT is_read AND NOT is_dismissed`).Scan(&count)
	return count, err
}

// MarkAllRead flags every signal as seen and returns how many changed.
func (r *Repository) MarkAllRead(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE aging_signals SET is_read = TRUE, updated_at = NOW() WHERE NOT is_read`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Dismiss suppresses a single signal until the candidate changes stage.
func (r *Repository) Dismiss(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE aging_signals SET is_dismissed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

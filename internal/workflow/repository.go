package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transition carries a guarded stage update. FromStage and FromVersion are
// the values read at the start of the operation; the update only applies
// while both still match, which serializes concurrent transitions per
// candidate without a global lock.
type Transition struct {
	CandidateID int64
	FromStage   Stage
	FromVersion int64
	ToStage     Stage

	AssignedBatchID *int64
	ActorID         int64
	Notes           string
	Reason          string
	At              time.Time
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	CreateCandidate(ctx context.Context, c Candidate) (Candidate, error)
	GetCandidate(ctx context.Context, id int64) (Candidate, error)
	ListByStage(ctx context.Context, stage Stage) ([]Candidate, error)
	ListActive(ctx context.Context) ([]Candidate, error)
	CountByStage(ctx context.Context) (Stats, error)
	ApplyTransition(ctx context.Context, t Transition) (Candidate, error)
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

const candidateColumns = `id, first_name, last_name, email, phone, city, state, stage, stage_entered_at, assigned_batch_id, version,
	screening_completed_at, screening_completed_by, screening_notes,
	orientation_completed_at, orientation_completed_by, orientation_notes,
	enrolled_at, enrolled_by, enrollment_notes, drop_reason, created_at, updated_at`

func scanCandidate(row pgx.Row) (Candidate, error) {
	var c Candidate
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.City, &c.State,
		&c.Stage, &c.StageEnteredAt, &c.AssignedBatchID, &c.Version,
		&c.ScreeningCompletedAt, &c.ScreeningCompletedBy, &c.ScreeningNotes,
		&c.OrientationCompletedAt, &c.OrientationCompletedBy, &c.OrientationNotes,
		&c.EnrolledAt, &c.EnrolledBy, &c.EnrollmentNotes, &c.DropReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// CreateCandidate inserts a candidate at the initial screening stage.
func (r *Repository) CreateCandidate(ctx context.Context, c Candidate) (Candidate, error) {
	return scanCandidate(r.pool.QueryRow(ctx,
		`INSERT INTO candidates (first_name, last_name, email, phone, city, state, stage, stage_entered_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		 RETURNING `+candidateColumns,
		c.FirstName, c.LastName, c.Email, c.Phone, c.City, c.State, c.Stage, c.StageEnteredAt,
	))
}

// GetCandidate fetches a candidate by ID.
func (r *Repository) GetCandidate(ctx context.Context, id int64) (Candidate, error) {
	c, err := scanCandidate(r.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Candidate{}, ErrNotFound
		}
		return Candidate{}, err
	}
	return c, nil
}

func (r *Repository) queryCandidates(ctx context.Context, query string, args ...any) ([]Candidate, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByStage returns candidates currently at the given stage.
func (r *Repository) ListByStage(ctx context.Context, stage Stage) ([]Candidate, error) {
	return r.queryCandidates(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE stage = $1 ORDER BY stage_entered_at, id`, stage)
}

// ListActive returns all candidates not in the dropped stage.
func (r *Repository) ListActive(ctx context.Context) ([]Candidate, error) {
	return r.queryCandidates(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE stage <> $1 ORDER BY id`, StageDropped)
}

// CountByStage aggregates candidate counts per stage.
func (r *Repository) CountByStage(ctx context.Context) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT stage, COUNT(*) FROM candidates GROUP BY stage`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	var stats Stats
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return Stats{}, err
		}
		switch stage {
		case StagePendingScreening:
			stats.PendingScreening = count
		case StagePendingOrientation:
			stats.PendingOrientation = count
		case StagePendingEnrollment:
			stats.PendingEnrollment = count
		case StageEnrolled:
			stats.Enrolled = count
		case StageOnHold:
			stats.OnHold = count
		case StageDropped:
			stats.Dropped = count
		}
	}
	return stats, rows.Err()
}

// ApplyTransition performs the guarded stage update. The WHERE clause pins
// both stage and version read at operation start; zero rows affected means a
// concurrent transition won and the caller gets ErrInvalidTransition.
func (r *Repository) ApplyTransition(ctx context.Context, t Transition) (Candidate, error) {
	query := `UPDATE candidates SET
		stage = $4,
		stage_entered_at = $5,
		version = version + 1,
		assigned_batch_id = $6,
		updated_at = NOW()`
	args := []any{t.CandidateID, t.FromStage, t.FromVersion, t.ToStage, t.At, t.AssignedBatchID}

	switch {
	case t.ToStage == StageDropped:
		query += `, drop_reason = $7`
		args = append(args, t.Reason)
	case t.ToStage == StageEnrolled:
		query += `, enrolled_at = $5, enrolled_by = $7, enrollment_notes = $8`
		args = append(args, t.ActorID, t.Notes)
	case t.FromStage == StagePendingScreening:
		query += `, screening_completed_at = $5, screening_completed_by = $7, screening_notes = $8`
		args = append(args, t.ActorID, t.Notes)
	case t.FromStage == StagePendingOrientation:
		query += `, orientation_completed_at = $5, orientation_completed_by = $7, orientation_notes = $8`
		args = append(args, t.ActorID, t.Notes)
	}

	query += ` WHERE id = $1 AND stage = $2 AND version = $3 RETURNING ` + candidateColumns

	c, err := scanCandidate(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the candidate is gone or the guard failed; distinguish
			// so callers see the right error kind.
			if _, getErr := r.GetCandidate(ctx, t.CandidateID); getErr != nil {
				return Candidate{}, getErr
			}
			return Candidate{}, ErrInvalidTransition
		}
		return Candidate{}, err
	}
	return c, nil
}

package training

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	ListBatches(ctx context.Context) ([]Batch, error)
	ListAvailable(ctx context.Context) ([]Batch, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]Batch, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	CreateBatch(ctx context.Context, batch Batch) (Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) (Batch, error)
	SetActive(ctx context.Context, id int64, active bool) error
	DeleteEmptyBatch(ctx context.Context, id int64) error
	TryReserveSlot(ctx context.Context, id int64) (bool, error)
	ReleaseSlot(ctx context.Context, id int64) error
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

// uq_training_batches_code is the unique index behind batch codes.
func mapBatchCodeConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_training_batches_code" {
		return ErrDuplicateCode
	}
	return err
}

const batchColumns = `id, code, training_name, max_capacity, current_enrolled, is_active, start_date, end_date, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Code, &b.TrainingName, &b.MaxCapacity, &b.CurrentEnrolled, &b.IsActive, &b.StartDate, &b.EndDate, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *Repository) queryBatches(ctx context.Context, query string, args ...any) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListBatches returns all batches ordered by start date.
func (r *Repository) ListBatches(ctx context.Context) ([]Batch, error) {
	return r.queryBatches(ctx, `SELECT `+batchColumns+` FROM training_batches ORDER BY start_date, id`)
}

// ListAvailable returns active batches with free slots.
func (r *Repository) ListAvailable(ctx context.Context) ([]Batch, error) {
	return r.queryBatches(ctx, `SELECT `+batchColumns+` FROM training_batches WHERE is_active AND current_enrolled < max_capacity ORDER BY start_date, id`)
}

// ListUpcoming returns batches starting after the given instant.
func (r *Repository) ListUpcoming(ctx context.Context, now time.Time) ([]Batch, error) {
	return r.queryBatches(ctx, `SELECT `+batchColumns+` FROM training_batches WHERE start_date > $1 ORDER BY start_date, id`, now)
}

// GetBatch fetches a batch by ID.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM training_batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

// CreateBatch inserts a new batch.
func (r *Repository) CreateBatch(ctx context.Context, batch Batch) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx,
		`INSERT INTO training_batches (code, training_name, max_capacity, current_enrolled, is_active, start_date, end_date)
		 VALUES ($1, $2, $3, 0, $4, $5, $6)
		 RETURNING `+batchColumns,
		batch.Code, batch.TrainingName, batch.MaxCapacity, batch.IsActive, batch.StartDate, batch.EndDate,
	))
	if err != nil {
		return Batch{}, mapBatchCodeConflict(err)
	}
	return b, nil
}

// UpdateBatch updates mutable batch fields. Enrollment counts are never
// written here, and the capacity floor lives in the statement so a
// reservation landing mid-update cannot push current_enrolled past the new
// maximum.
func (r *Repository) UpdateBatch(ctx context.Context, batch Batch) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx,
		`UPDATE training_batches
		 SET code = $2, training_name = $3, max_capacity = $4, start_date = $5, end_date = $6, updated_at = NOW()
		 WHERE id = $1 AND current_enrolled <= $4
		 RETURNING `+batchColumns,
		batch.ID, batch.Code, batch.TrainingName, batch.MaxCapacity, batch.StartDate, batch.EndDate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetBatch(ctx, batch.ID); getErr != nil {
				return Batch{}, getErr
			}
			return Batch{}, ErrCapacityExceeded
		}
		return Batch{}, mapBatchCodeConflict(err)
	}
	return b, nil
}

// SetActive flips the batch active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE training_batches SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEmptyBatch removes a batch only while nobody is enrolled. The guard
// lives in the same statement so a concurrent reservation cannot slip in
// between check and delete.
func (r *Repository) DeleteEmptyBatch(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM training_batches WHERE id = $1 AND current_enrolled = 0`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetBatch(ctx, id); err != nil {
			return err
		}
		return ErrBatchNotEmpty
	}
	return nil
}

// TryReserveSlot atomically claims one slot. The compare and the increment
// are a single UPDATE so two concurrent callers can never both claim the
// last slot.
func (r *Repository) TryReserveSlot(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE training_batches
		 SET current_enrolled = current_enrolled + 1, updated_at = NOW()
		 WHERE id = $1 AND is_active AND current_enrolled < max_capacity`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSlot frees one slot, floored at zero.
func (r *Repository) ReleaseSlot(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE training_batches
		 SET current_enrolled = GREATEST(current_enrolled - 1, 0), updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

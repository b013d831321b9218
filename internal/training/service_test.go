package training

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/talentpath-hq/talentpath/internal/rbac"
)

type memoryRepo struct {
	mu      sync.Mutex
	batches map[int64]*Batch
	nextID  int64

	// afterGet fires once after the next GetBatch, to wedge writes between
	// a caller's read and its follow-up statement.
	afterGet func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[int64]*Batch)}
}

func (r *memoryRepo) addBatch(maxCapacity int, active bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.batches[r.nextID] = &Batch{
		ID:          r.nextID,
		Code:        "B-2026-01",
		MaxCapacity: maxCapacity,
		IsActive:    active,
		StartDate:   time.Now().Add(24 * time.Hour),
	}
	return r.nextID
}

func (r *memoryRepo) ListBatches(ctx context.Context) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRepo) ListAvailable(ctx context.Context) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Batch
	for _, b := range r.batches {
		if b.IsActive && b.CurrentEnrolled < b.MaxCapacity {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListUpcoming(ctx context.Context, now time.Time) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Batch
	for _, b := range r.batches {
		if b.StartDate.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	r.mu.Lock()
	b, ok := r.batches[id]
	var out Batch
	if ok {
		out = *b
	}
	hook := r.afterGet
	r.afterGet = nil
	r.mu.Unlock()
	if !ok {
		return Batch{}, ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *memoryRepo) CreateBatch(ctx context.Context, batch Batch) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	batch.ID = r.nextID
	r.batches[batch.ID] = &batch
	return batch, nil
}

func (r *memoryRepo) UpdateBatch(ctx context.Context, batch Batch) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.batches[batch.ID]
	if !ok {
		return Batch{}, ErrNotFound
	}
	if existing.CurrentEnrolled > batch.MaxCapacity {
		return Batch{}, ErrCapacityExceeded
	}
	existing.Code = batch.Code
	existing.TrainingName = batch.TrainingName
	existing.MaxCapacity = batch.MaxCapacity
	existing.StartDate = batch.StartDate
	existing.EndDate = batch.EndDate
	return *existing, nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.IsActive = active
	return nil
}

func (r *memoryRepo) DeleteEmptyBatch(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return ErrNotFound
	}
	if b.CurrentEnrolled > 0 {
		return ErrBatchNotEmpty
	}
	delete(r.batches, id)
	return nil
}

func (r *memoryRepo) TryReserveSlot(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return false, nil
	}
	if !b.IsActive || b.CurrentEnrolled >= b.MaxCapacity {
		return false, nil
	}
	b.CurrentEnrolled++
	return true, nil
}

func (r *memoryRepo) ReleaseSlot(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return ErrNotFound
	}
	if b.CurrentEnrolled > 0 {
		b.CurrentEnrolled--
	}
	return nil
}

type allowAllGate struct{}

func (allowAllGate) Check(ctx context.Context, principal rbac.Principal, required string) error {
	return nil
}

func manager() rbac.Principal {
	return rbac.Principal{UserID: 7, RoleName: "STATE_ADMIN", Permissions: []string{"training.manage"}}
}

func TestReserveClaimsSlot(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(2, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, id, res.BatchID)

	slots, err := svc.AvailableSlots(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, slots)
}

func TestReserveFullBatch(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(1, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, id)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, id)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestReserveInactiveBatch(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(5, false)
	svc := NewService(repo, allowAllGate{}, nil)

	_, err := svc.Reserve(context.Background(), id)
	require.ErrorIs(t, err, ErrBatchInactive)
}

func TestReserveMissingBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, allowAllGate{}, nil)

	_, err := svc.Reserve(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentReservesNeverOverbook(t *testing.T) {
	const workers = 50
	const capacity = 7

	repo := newMemoryRepo()
	id := repo.addBatch(capacity, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, id)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrCapacityExceeded)
			full++
		}
	}
	require.Equal(t, capacity, succeeded)
	require.Equal(t, workers-capacity, full)

	batch, err := svc.GetBatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, capacity, batch.CurrentEnrolled)
	require.Equal(t, 0, batch.AvailableSlots())
}

func TestReleaseFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(3, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	require.NoError(t, svc.Release(ctx, id))
	batch, err := svc.GetBatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0, batch.CurrentEnrolled)
}

func TestDeleteBatchRejectsNonEmpty(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(2, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, id)
	require.NoError(t, err)

	err = svc.DeleteBatch(ctx, manager(), id)
	require.ErrorIs(t, err, ErrBatchNotEmpty)

	require.NoError(t, svc.Release(ctx, id))
	require.NoError(t, svc.DeleteBatch(ctx, manager(), id))
}

func TestUpdateBatchCannotShrinkBelowEnrollment(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(3, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, id)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, id)
	require.NoError(t, err)

	_, err = svc.UpdateBatch(ctx, manager(), id, BatchInput{Code: "B-2026-01", TrainingName: "Welding", MaxCapacity: 1, StartDate: time.Now()})
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestUpdateBatchShrinkLosesToConcurrentReserves(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addBatch(10, true)
	svc := NewService(repo, allowAllGate{}, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Reserve(ctx, id)
		require.NoError(t, err)
	}

	// Three reservations land between the shrink's read and its write.
	repo.afterGet = func() {
		for i := 0; i < 3; i++ {
			_, err := svc.Reserve(ctx, id)
			require.NoError(t, err)
		}
	}

	_, err := svc.UpdateBatch(ctx, manager(), id, BatchInput{Code: "B-2026-01", TrainingName: "Welding", MaxCapacity: 5, StartDate: time.Now()})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	batch, err := svc.GetBatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 10, batch.MaxCapacity, "losing shrink must not change the cap")
	require.Equal(t, 7, batch.CurrentEnrolled)
}

func TestBatchCodeConflictMapping(t *testing.T) {
	conflict := &pgconn.PgError{Code: "23505", ConstraintName: "uq_training_batches_code"}
	require.ErrorIs(t, mapBatchCodeConflict(conflict), ErrDuplicateCode)

	otherConstraint := &pgconn.PgError{Code: "23505", ConstraintName: "uq_admin_users_email"}
	require.NotErrorIs(t, mapBatchCodeConflict(otherConstraint), ErrDuplicateCode)

	plain := errors.New("connection reset")
	require.Equal(t, plain, mapBatchCodeConflict(plain))
}

func TestCreateBatchValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, allowAllGate{}, nil)

	_, err := svc.CreateBatch(context.Background(), manager(), BatchInput{Code: "", MaxCapacity: 10})
	require.Error(t, err)

	_, err = svc.CreateBatch(context.Background(), manager(), BatchInput{Code: "B1", MaxCapacity: 0})
	require.Error(t, err)
}

package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/training"
)

type memoryRepo struct {
	mu          sync.Mutex
	candidates  map[int64]*Candidate
	nextID      int64
	beforeApply func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{candidates: make(map[int64]*Candidate)}
}

func (r *memoryRepo) CreateCandidate(ctx context.Context, c Candidate) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.candidates[c.ID] = &c
	return c, nil
}

func (r *memoryRepo) GetCandidate(ctx context.Context, id int64) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return *c, nil
}

func (r *memoryRepo) ListByStage(ctx context.Context, stage Stage) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Candidate
	for _, c := range r.candidates {
		if c.Stage == stage {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Candidate
	for _, c := range r.candidates {
		if c.Stage != StageDropped {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountByStage(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats Stats
	for _, c := range r.candidates {
		switch c.Stage {
		case StagePendingScreening:
			stats.PendingScreening++
		case StagePendingOrientation:
			stats.PendingOrientation++
		case StagePendingEnrollment:
			stats.PendingEnrollment++
		case StageEnrolled:
			stats.Enrolled++
		case StageOnHold:
			stats.OnHold++
		case StageDropped:
			stats.Dropped++
		}
	}
	return stats, nil
}

func (r *memoryRepo) ApplyTransition(ctx context.Context, t Transition) (Candidate, error) {
	if r.beforeApply != nil {
		hook := r.beforeApply
		r.beforeApply = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[t.CandidateID]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	if c.Stage != t.FromStage || c.Version != t.FromVersion {
		return Candidate{}, ErrInvalidTransition
	}
	c.Stage = t.ToStage
	c.StageEnteredAt = t.At
	c.Version++
	c.AssignedBatchID = t.AssignedBatchID
	c.UpdatedAt = t.At
	switch {
	case t.ToStage == StageDropped:
		c.DropReason = t.Reason
	case t.ToStage == StageEnrolled:
		at := t.At
		c.EnrolledAt = &at
		c.EnrolledBy = t.ActorID
		c.EnrollmentNotes = t.Notes
	case t.FromStage == StagePendingScreening:
		at := t.At
		c.ScreeningCompletedAt = &at
		c.ScreeningCompletedBy = t.ActorID
		c.ScreeningNotes = t.Notes
	case t.FromStage == StagePendingOrientation:
		at := t.At
		c.OrientationCompletedAt = &at
		c.OrientationCompletedBy = t.ActorID
		c.OrientationNotes = t.Notes
	}
	return *c, nil
}

type memoryLedger struct {
	mu       sync.Mutex
	capacity map[int64]int
	enrolled map[int64]int
	active   map[int64]bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{capacity: make(map[int64]int), enrolled: make(map[int64]int), active: make(map[int64]bool)}
}

func (l *memoryLedger) addBatch(id int64, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity[id] = capacity
	l.active[id] = true
}

func (l *memoryLedger) Reserve(ctx context.Context, batchID int64) (training.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	capacity, ok := l.capacity[batchID]
	if !ok {
		return training.Reservation{}, training.ErrNotFound
	}
	if !l.active[batchID] {
		return training.Reservation{}, training.ErrBatchInactive
	}
	if l.enrolled[batchID] >= capacity {
		return training.Reservation{}, training.ErrCapacityExceeded
	}
	l.enrolled[batchID]++
	return training.Reservation{Token: "tok", BatchID: batchID}, nil
}

func (l *memoryLedger) Release(ctx context.Context, batchID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enrolled[batchID] > 0 {
		l.enrolled[batchID]--
	}
	return nil
}

func (l *memoryLedger) count(batchID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enrolled[batchID]
}

type allowAllGate struct{}

func (allowAllGate) Check(ctx context.Context, principal rbac.Principal, required string) error {
	return nil
}

type denyAllGate struct{}

func (denyAllGate) Check(ctx context.Context, principal rbac.Principal, required string) error {
	return rbac.ErrUnauthorized
}

func screener() rbac.Principal {
	return rbac.Principal{UserID: 11, RoleName: "STATE_ADMIN"}
}

func newTestService(repo *memoryRepo, ledger *memoryLedger, cfg ServiceConfig) *Service {
	return NewService(repo, allowAllGate{}, ledger, nil, cfg)
}

func register(t *testing.T, svc *Service) Candidate {
	t.Helper()
	c, err := svc.Register(context.Background(), screener(), RegisterInput{FirstName: "Asha", LastName: "Verma"})
	require.NoError(t, err)
	require.Equal(t, StagePendingScreening, c.Stage)
	require.Nil(t, c.AssignedBatchID)
	return c
}

func requireInvariant(t *testing.T, c Candidate) {
	t.Helper()
	if c.Stage == StageEnrolled {
		require.NotNil(t, c.AssignedBatchID)
	} else {
		require.Nil(t, c.AssignedBatchID)
	}
}

func TestFullPipeline(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newMemoryLedger()
	ledger.addBatch(1, 1)
	svc := newTestService(repo, ledger, ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)

	c, err := svc.CompleteScreening(ctx, c.ID, screener(), true, "documents ok")
	require.NoError(t, err)
	require.Equal(t, StagePendingOrientation, c.Stage)
	require.NotNil(t, c.ScreeningCompletedAt)
	requireInvariant(t, c)

	c, err = svc.CompleteOrientation(ctx, c.ID, screener(), "attended")
	require.NoError(t, err)
	require.Equal(t, StagePendingEnrollment, c.Stage)
	requireInvariant(t, c)

	c, err = svc.Enroll(ctx, c.ID, screener(), 1, "batch jan")
	require.NoError(t, err)
	require.Equal(t, StageEnrolled, c.Stage)
	require.NotNil(t, c.AssignedBatchID)
	require.Equal(t, int64(1), *c.AssignedBatchID)
	require.Equal(t, 1, ledger.count(1))

	// Batch is full now; the next candidate is rejected cleanly.
	d := register(t, svc)
	_, err = svc.CompleteScreening(ctx, d.ID, screener(), true, "")
	require.NoError(t, err)
	_, err = svc.CompleteOrientation(ctx, d.ID, screener(), "")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, d.ID, screener(), 1, "")
	require.ErrorIs(t, err, training.ErrCapacityExceeded)

	got, err := svc.GetCandidate(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, StagePendingEnrollment, got.Stage)
	requireInvariant(t, got)
}

func TestScreeningRejectionParksOnHold(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newMemoryLedger(), ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)
	c, err := svc.CompleteScreening(ctx, c.ID, screener(), false, "incomplete documents")
	require.NoError(t, err)
	require.Equal(t, StageOnHold, c.Stage)

	// No forward path out of ON_HOLD.
	_, err = svc.CompleteOrientation(ctx, c.ID, screener(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.CompleteScreening(ctx, c.ID, screener(), true, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionPreconditions(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newMemoryLedger()
	ledger.addBatch(1, 5)
	svc := newTestService(repo, ledger, ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)

	_, err := svc.CompleteOrientation(ctx, c.ID, screener(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Enroll(ctx, c.ID, screener(), 1, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 0, ledger.count(1))
}

func TestUnauthorizedLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newMemoryLedger()
	ledger.addBatch(1, 5)
	svc := NewService(repo, denyAllGate{}, ledger, nil, ServiceConfig{})
	ctx := context.Background()

	seeded, err := repo.CreateCandidate(ctx, Candidate{FirstName: "Asha", Stage: StagePendingScreening, StageEnteredAt: time.Now()})
	require.NoError(t, err)

	_, err = svc.CompleteScreening(ctx, seeded.ID, screener(), true, "")
	require.ErrorIs(t, err, rbac.ErrUnauthorized)

	got, err := repo.GetCandidate(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, StagePendingScreening, got.Stage)
	require.Equal(t, int64(0), got.Version)
	require.Equal(t, 0, ledger.count(1))
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newMemoryLedger(), ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(approved bool) {
			defer wg.Done()
			_, err := svc.CompleteScreening(ctx, c.ID, screener(), approved, "")
			errs <- err
		}(i == 0)
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition)
			rejected++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
}

func TestEnrollReleasesReservationWhenCommitLoses(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newMemoryLedger()
	ledger.addBatch(1, 1)
	svc := newTestService(repo, ledger, ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)
	c, err := svc.CompleteScreening(ctx, c.ID, screener(), true, "")
	require.NoError(t, err)
	c, err = svc.CompleteOrientation(ctx, c.ID, screener(), "")
	require.NoError(t, err)

	// A competing transition bumps the version between the stage read and
	// the guarded commit.
	repo.beforeApply = func() {
		repo.mu.Lock()
		repo.candidates[c.ID].Version++
		repo.mu.Unlock()
	}

	_, err = svc.Enroll(ctx, c.ID, screener(), 1, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 0, ledger.count(1), "failed commit must release the reserved slot")
}

func TestDropPolicy(t *testing.T) {
	repo := newMemoryRepo()
	ledger := newMemoryLedger()
	ledger.addBatch(1, 1)
	svc := newTestService(repo, ledger, ServiceConfig{})
	ctx := context.Background()

	c := register(t, svc)

	// Default policy: only enrolled candidates can be dropped.
	_, err := svc.Drop(ctx, c.ID, screener(), "moved away")
	require.ErrorIs(t, err, ErrInvalidTransition)

	c, err = svc.CompleteScreening(ctx, c.ID, screener(), true, "")
	require.NoError(t, err)
	c, err = svc.CompleteOrientation(ctx, c.ID, screener(), "")
	require.NoError(t, err)
	c, err = svc.Enroll(ctx, c.ID, screener(), 1, "")
	require.NoError(t, err)
	require.Equal(t, 1, ledger.count(1))

	c, err = svc.Drop(ctx, c.ID, screener(), "moved away")
	require.NoError(t, err)
	require.Equal(t, StageDropped, c.Stage)
	require.Equal(t, "moved away", c.DropReason)
	requireInvariant(t, c)
	require.Equal(t, 0, ledger.count(1), "dropping an enrolled candidate frees the slot")

	_, err = svc.Drop(ctx, c.ID, screener(), "twice")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDropFromAnyStagePolicy(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newMemoryLedger(), ServiceConfig{AllowDropFromAnyStage: true})
	ctx := context.Background()

	c := register(t, svc)
	c, err := svc.Drop(ctx, c.ID, screener(), "abandoned mid-screening")
	require.NoError(t, err)
	require.Equal(t, StageDropped, c.Stage)
	requireInvariant(t, c)
}

func TestStats(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newMemoryLedger(), ServiceConfig{})
	ctx := context.Background()

	register(t, svc)
	c := register(t, svc)
	_, err := svc.CompleteScreening(ctx, c.ID, screener(), false, "")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingScreening)
	require.Equal(t, 1, stats.OnHold)
}

func TestListByStageRejectsUnknownStage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newMemoryLedger(), ServiceConfig{})

	_, err := svc.ListByStage(context.Background(), Stage("BOGUS"))
	require.Error(t, err)
}

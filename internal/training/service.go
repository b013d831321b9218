package training

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
)

// GatePort abstracts the authorization gate.
type GatePort interface {
	Check(ctx context.Context, principal rbac.Principal, required string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages training batches and the capacity ledger.
type Service struct {
	repo  RepositoryPort
	gate  GatePort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, gate GatePort, audit AuditPort) *Service {
	return &Service{repo: repo, gate: gate, audit: audit}
}

// BatchInput carries batch creation and update fields.
type BatchInput struct {
	Code         string
	TrainingName string
	MaxCapacity  int
	StartDate    time.Time
	EndDate      time.Time
}

func (in BatchInput) validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("training: batch code required")
	}
	if in.MaxCapacity <= 0 {
		return errors.New("training: max capacity must be positive")
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return errors.New("training: end date before start date")
	}
	return nil
}

// Reserve atomically claims one slot on an active batch. On failure the
// ledger is untouched and the returned error tells the caller why.
func (s *Service) Reserve(ctx context.Context, batchID int64) (Reservation, error) {
	reserved, err := s.repo.TryReserveSlot(ctx, batchID)
	if err != nil {
		return Reservation{}, err
	}
	if reserved {
		return Reservation{Token: uuid.NewString(), BatchID: batchID}, nil
	}
	// The single-statement reserve failed. Classify the rejection; the read
	// here is only for the error kind, never for a second reserve attempt.
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Reservation{}, err
	}
	if !batch.IsActive {
		return Reservation{}, ErrBatchInactive
	}
	return Reservation{}, ErrCapacityExceeded
}

// Release frees one previously reserved slot.
func (s *Service) Release(ctx context.Context, batchID int64) error {
	return s.repo.ReleaseSlot(ctx, batchID)
}

// AvailableSlots returns the remaining capacity of a batch.
func (s *Service) AvailableSlots(ctx context.Context, batchID int64) (int, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	return batch.AvailableSlots(), nil
}

// GetBatch fetches a batch by ID.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns all batches.
func (s *Service) ListBatches(ctx context.Context) ([]Batch, error) {
	return s.repo.ListBatches(ctx)
}

// ListAvailable returns active batches with free slots.
func (s *Service) ListAvailable(ctx context.Context) ([]Batch, error) {
	return s.repo.ListAvailable(ctx)
}

// ListUpcoming returns batches that have not started yet.
func (s *Service) ListUpcoming(ctx context.Context) ([]Batch, error) {
	return s.repo.ListUpcoming(ctx, time.Now().UTC())
}

// CreateBatch inserts a new batch.
func (s *Service) CreateBatch(ctx context.Context, principal rbac.Principal, input BatchInput) (Batch, error) {
	if err := s.gate.Check(ctx, principal, shared.PermTrainingManage); err != nil {
		return Batch{}, err
	}
	if err := input.validate(); err != nil {
		return Batch{}, err
	}
	batch, err := s.repo.CreateBatch(ctx, Batch{
		Code:         strings.TrimSpace(input.Code),
		TrainingName: strings.TrimSpace(input.TrainingName),
		MaxCapacity:  input.MaxCapacity,
		IsActive:     true,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, principal, "batch.create", batch.ID, nil)
	return batch, nil
}

// UpdateBatch updates batch master data. Shrinking capacity below the
// current enrollment is rejected to keep the ledger invariant.
func (s *Service) UpdateBatch(ctx context.Context, principal rbac.Principal, id int64, input BatchInput) (Batch, error) {
	if err := s.gate.Check(ctx, principal, shared.PermTrainingManage); err != nil {
		return Batch{}, err
	}
	if err := input.validate(); err != nil {
		return Batch{}, err
	}
	existing, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if input.MaxCapacity < existing.CurrentEnrolled {
		return Batch{}, ErrCapacityExceeded
	}
	batch, err := s.repo.UpdateBatch(ctx, Batch{
		ID:           id,
		Code:         strings.TrimSpace(input.Code),
		TrainingName: strings.TrimSpace(input.TrainingName),
		MaxCapacity:  input.MaxCapacity,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, principal, "batch.update", id, nil)
	return batch, nil
}

// ToggleActive flips the batch active flag.
func (s *Service) ToggleActive(ctx context.Context, principal rbac.Principal, id int64) (Batch, error) {
	if err := s.gate.Check(ctx, principal, shared.PermTrainingManage); err != nil {
		return Batch{}, err
	}
	existing, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if err := s.repo.SetActive(ctx, id, !existing.IsActive); err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, principal, "batch.toggle", id, map[string]any{"active": !existing.IsActive})
	return s.repo.GetBatch(ctx, id)
}

// DeleteBatch removes a batch, rejecting while anyone is enrolled.
func (s *Service) DeleteBatch(ctx context.Context, principal rbac.Principal, id int64) error {
	if err := s.gate.Check(ctx, principal, shared.PermTrainingManage); err != nil {
		return err
	}
	if err := s.repo.DeleteEmptyBatch(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "batch.delete", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, principal rbac.Principal, action string, batchID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.UserID,
		Action:   action,
		Entity:   "training_batch",
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     meta,
	})
}

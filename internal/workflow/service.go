package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	"github.com/talentpath-hq/talentpath/internal/training"
)

// GatePort abstracts the authorization gate.
type GatePort interface {
	Check(ctx context.Context, principal rbac.Principal, required string) error
}

// LedgerPort abstracts the training capacity ledger.
type LedgerPort interface {
	Reserve(ctx context.Context, batchID int64) (training.Reservation, error)
	Release(ctx context.Context, batchID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional policy settings.
type ServiceConfig struct {
	// AllowDropFromAnyStage permits dropping candidates that never reached
	// ENROLLED. The default restricts Drop to enrolled candidates.
	AllowDropFromAnyStage bool
}

// Service is the candidate workflow engine. Every transition authorizes the
// principal first, then applies a guarded stage update so concurrent callers
// on the same candidate cannot both succeed from the same precondition.
type Service struct {
	repo   RepositoryPort
	gate   GatePort
	ledger LedgerPort
	audit  AuditPort
	cfg    ServiceConfig
}

// NewService builds Service.
func NewService(repo RepositoryPort, gate GatePort, ledger LedgerPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, gate: gate, ledger: ledger, audit: audit, cfg: cfg}
}

// RegisterInput carries the fields captured at registration.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	City      string
	State     string
}

// Register creates a candidate at the initial screening stage.
func (s *Service) Register(ctx context.Context, principal rbac.Principal, input RegisterInput) (Candidate, error) {
	if err := s.gate.Check(ctx, principal, shared.PermCandidateRegister); err != nil {
		return Candidate{}, err
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return Candidate{}, errors.New("workflow: first name required")
	}
	now := time.Now().UTC()
	candidate, err := s.repo.CreateCandidate(ctx, Candidate{
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Email:          strings.TrimSpace(input.Email),
		Phone:          strings.TrimSpace(input.Phone),
		City:           input.City,
		State:          input.State,
		Stage:          StagePendingScreening,
		StageEnteredAt: now,
	})
	if err != nil {
		return Candidate{}, err
	}
	s.recordAudit(ctx, principal, "candidate.register", candidate.ID, nil)
	return candidate, nil
}

// CompleteScreening moves a candidate out of screening. Approval advances to
// orientation; rejection parks the candidate on hold.
func (s *Service) CompleteScreening(ctx context.Context, candidateID int64, principal rbac.Principal, approved bool, notes string) (Candidate, error) {
	if err := s.gate.Check(ctx, principal, shared.PermScreeningComplete); err != nil {
		return Candidate{}, err
	}
	candidate, err := s.repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if candidate.Stage != StagePendingScreening {
		return Candidate{}, fmt.Errorf("%w: complete screening from %s", ErrInvalidTransition, candidate.Stage)
	}
	target := StagePendingOrientation
	if !approved {
		target = StageOnHold
	}
	updated, err := s.repo.ApplyTransition(ctx, Transition{
		CandidateID: candidateID,
		FromStage:   StagePendingScreening,
		FromVersion: candidate.Version,
		ToStage:     target,
		ActorID:     principal.UserID,
		Notes:       notes,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return Candidate{}, err
	}
	s.recordAudit(ctx, principal, "candidate.screening_complete", candidateID, map[string]any{"approved": approved})
	return updated, nil
}

// CompleteOrientation advances a candidate from orientation to the
// enrollment queue.
func (s *Service) CompleteOrientation(ctx context.Context, candidateID int64, principal rbac.Principal, notes string) (Candidate, error) {
	if err := s.gate.Check(ctx, principal, shared.PermOrientationComplete); err != nil {
		return Candidate{}, err
	}
	candidate, err := s.repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if candidate.Stage != StagePendingOrientation {
		return Candidate{}, fmt.Errorf("%w: complete orientation from %s", ErrInvalidTransition, candidate.Stage)
	}
	updated, err := s.repo.ApplyTransition(ctx, Transition{
		CandidateID: candidateID,
		FromStage:   StagePendingOrientation,
		FromVersion: candidate.Version,
		ToStage:     StagePendingEnrollment,
		ActorID:     principal.UserID,
		Notes:       notes,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return Candidate{}, err
	}
	s.recordAudit(ctx, principal, "candidate.orientation_complete", candidateID, nil)
	return updated, nil
}

// Enroll places the candidate into a training batch. The slot is reserved on
// the ledger first and released again if the stage commit loses against a
// concurrent transition, so a failed enroll never leaks an occupied slot.
func (s *Service) Enroll(ctx context.Context, candidateID int64, principal rbac.Principal, batchID int64, notes string) (Candidate, error) {
	if err := s.gate.Check(ctx, principal, shared.PermEnrollmentManage); err != nil {
		return Candidate{}, err
	}
	candidate, err := s.repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if candidate.Stage != StagePendingEnrollment {
		return Candidate{}, fmt.Errorf("%w: enroll from %s", ErrInvalidTransition, candidate.Stage)
	}

	reservation, err := s.ledger.Reserve(ctx, batchID)
	if err != nil {
		return Candidate{}, err
	}

	updated, err := s.repo.ApplyTransition(ctx, Transition{
		CandidateID:     candidateID,
		FromStage:       StagePendingEnrollment,
		FromVersion:     candidate.Version,
		ToStage:         StageEnrolled,
		AssignedBatchID: &reservation.BatchID,
		ActorID:         principal.UserID,
		Notes:           notes,
		At:              time.Now().UTC(),
	})
	if err != nil {
		if releaseErr := s.ledger.Release(ctx, batchID); releaseErr != nil {
			return Candidate{}, errors.Join(err, releaseErr)
		}
		return Candidate{}, err
	}
	s.recordAudit(ctx, principal, "candidate.enroll", candidateID, map[string]any{"batch_id": batchID, "reservation": reservation.Token})
	return updated, nil
}

// Drop releases a candidate from the pipeline. Leaving ENROLLED frees the
// batch slot.
func (s *Service) Drop(ctx context.Context, candidateID int64, principal rbac.Principal, reason string) (Candidate, error) {
	if err := s.gate.Check(ctx, principal, shared.PermEnrollmentManage); err != nil {
		return Candidate{}, err
	}
	candidate, err := s.repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if candidate.Stage == StageDropped {
		return Candidate{}, fmt.Errorf("%w: already dropped", ErrInvalidTransition)
	}
	if candidate.Stage != StageEnrolled && !s.cfg.AllowDropFromAnyStage {
		return Candidate{}, fmt.Errorf("%w: drop from %s", ErrInvalidTransition, candidate.Stage)
	}

	releaseBatch := candidate.Stage == StageEnrolled && candidate.AssignedBatchID != nil
	batchID := int64(0)
	if releaseBatch {
		batchID = *candidate.AssignedBatchID
	}

	updated, err := s.repo.ApplyTransition(ctx, Transition{
		CandidateID: candidateID,
		FromStage:   candidate.Stage,
		FromVersion: candidate.Version,
		ToStage:     StageDropped,
		ActorID:     principal.UserID,
		Reason:      reason,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return Candidate{}, err
	}
	if releaseBatch {
		if err := s.ledger.Release(ctx, batchID); err != nil {
			return Candidate{}, err
		}
	}
	s.recordAudit(ctx, principal, "candidate.drop", candidateID, map[string]any{"reason": reason})
	return updated, nil
}

// GetCandidate fetches a candidate by ID.
func (s *Service) GetCandidate(ctx context.Context, id int64) (Candidate, error) {
	return s.repo.GetCandidate(ctx, id)
}

// ListByStage returns candidates currently at the given stage.
func (s *Service) ListByStage(ctx context.Context, stage Stage) ([]Candidate, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("workflow: unknown stage %q", stage)
	}
	return s.repo.ListByStage(ctx, stage)
}

// ListActive returns every candidate that has not been dropped. The aging
// recompute job feeds off this.
func (s *Service) ListActive(ctx context.Context) ([]Candidate, error) {
	return s.repo.ListActive(ctx)
}

// Stats aggregates per-stage candidate counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.CountByStage(ctx)
}

func (s *Service) recordAudit(ctx context.Context, principal rbac.Principal, action string, candidateID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.UserID,
		Action:   action,
		Entity:   "candidate",
		EntityID: strconv.FormatInt(candidateID, 10),
		Meta:     meta,
	})
}

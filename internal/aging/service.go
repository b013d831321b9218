package aging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	"github.com/talentpath-hq/talentpath/internal/workflow"
)

// GatePort authorizes operations against the caller's permissions.
type GatePort interface {
	Check(ctx context.Context, principal rbac.Principal, required string) error
}

// CandidateSource feeds the recompute pass with pipeline candidates.
// *workflow.Service satisfies it.
type CandidateSource interface {
	ListActive(ctx context.Context) ([]workflow.Candidate, error)
}

// AuditPort records admin actions.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

const (
	summaryCacheKey = "talentpath:aging:summary"
	summaryCacheTTL = 30 * time.Second
)

// Service recomputes and serves aging signals.
type Service struct {
	repo       RepositoryPort
	source     CandidateSource
	gate       GatePort
	audit      AuditPort
	cache      *redis.Client
	summaryGrp singleflight.Group
	now        func() time.Time
}

// NewService constructs a service. cache may be nil, in which case every
// summary read hits the database.
func NewService(repo RepositoryPort, source CandidateSource, gate GatePort, audit AuditPort, cache *redis.Client) *Service {
	return &Service{
		repo:   repo,
		source: source,
		gate:   gate,
		audit:  audit,
		cache:  cache,
		now:    time.Now,
	}
}

// agingRelevant reports whether a stage generates a signal. The pending
// stages track how long a candidate has waited on an admin action; enrolled
// candidates stay on the board so the dwell time doubles as a
// time-to-complete measure. On hold and dropped candidates are off the board.
func agingRelevant(stage workflow.Stage) bool {
	switch stage {
	case workflow.StagePendingScreening, workflow.StagePendingOrientation,
		workflow.StagePendingEnrollment, workflow.StageEnrolled:
		return true
	}
	return false
}

// Recompute rebuilds the signal set from the current pipeline. The pass is
// idempotent: running it twice against the same pipeline state produces the
// same signals, and read or dismissed flags survive as long as the candidate
// stays put.
func (s *Service) Recompute(ctx context.Context) (int, error) {
	candidates, err := s.source.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("aging: list candidates: %w", err)
	}

	now := s.now().UTC()
	kept := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if !agingRelevant(c.Stage) {
			continue
		}
		days := DaysBetween(c.StageEnteredAt, now)
		sig := Signal{
			CandidateID:    c.ID,
			CandidateName:  c.FirstName + " " + c.LastName,
			Phone:          c.Phone,
			Stage:          c.Stage,
			StageEnteredAt: c.StageEnteredAt,
			DaysInStage:    days,
			Color:          Classify(days),
			Message:        SignalMessage(c.Stage, days),
		}
		if err := s.repo.Upsert(ctx, sig); err != nil {
			return 0, fmt.Errorf("aging: upsert signal for candidate %d: %w", c.ID, err)
		}
		kept = append(kept, c.ID)
	}
	if err := s.repo.DeleteExcept(ctx, kept); err != nil {
		return 0, fmt.Errorf("aging: prune signals: %w", err)
	}
	s.invalidateSummary(ctx)
	return len(kept), nil
}

// Trigger runs a recompute on behalf of an admin.
func (s *Service) Trigger(ctx context.Context, principal rbac.Principal) (int, error) {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsManage); err != nil {
		return 0, err
	}
	n, err := s.Recompute(ctx)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, principal, "aging.recompute", "all", map[string]any{"signals": n})
	return n, nil
}

// ListSignals returns non-dismissed signals, optionally filtered by color.
func (s *Service) ListSignals(ctx context.Context, principal rbac.Principal, color *Color) ([]Signal, error) {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsView); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, color)
}

// Summary returns per-color signal counts. Concurrent callers share one
// database read and the result is cached briefly in redis.
func (s *Service) Summary(ctx context.Context, principal rbac.Principal) (Summary, error) {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsView); err != nil {
		return Summary{}, err
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, summaryCacheKey).Bytes(); err == nil {
			var cached Summary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	v, err, _ := s.summaryGrp.Do(summaryCacheKey, func() (any, error) {
		sum, err := s.repo.Summarize(ctx)
		if err != nil {
			return Summary{}, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(sum); err == nil {
				s.cache.Set(ctx, summaryCacheKey, raw, summaryCacheTTL)
			}
		}
		return sum, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// SignalCounts returns the current per-color counts without an authorization
// check. The background recompute job uses it to update gauges.
func (s *Service) SignalCounts(ctx context.Context) (Summary, error) {
	return s.repo.Summarize(ctx)
}

// UnreadCount returns how many signals the admin has not seen yet.
func (s *Service) UnreadCount(ctx context.Context, principal rbac.Principal) (int, error) {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsView); err != nil {
		return 0, err
	}
	return s.repo.UnreadCount(ctx)
}

// MarkAllRead flags every signal as seen.
func (s *Service) MarkAllRead(ctx context.Context, principal rbac.Principal) (int, error) {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsManage); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, principal, "aging.mark_all_read", "all", map[string]any{"updated": n})
	return n, nil
}

// Dismiss suppresses one signal until its candidate changes stage.
func (s *Service) Dismiss(ctx context.Context, principal rbac.Principal, id int64) error {
	if err := s.gate.Check(ctx, principal, shared.PermNotificationsManage); err != nil {
		return err
	}
	if err := s.repo.Dismiss(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	s.recordAudit(ctx, principal, "aging.dismiss", strconv.FormatInt(id, 10), nil)
	return nil
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if s.cache != nil {
		s.cache.Del(ctx, summaryCacheKey)
	}
}

func (s *Service) recordAudit(ctx context.Context, principal rbac.Principal, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.UserID,
		Action:   action,
		Entity:   "aging_signal",
		EntityID: entityID,
		Meta:     meta,
	})
}

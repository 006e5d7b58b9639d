package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/cache"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/metrics"
)

// AvailabilityRepository is the lock-free read side of the quota resolver.
// None of these queries take row locks; display reads tolerate the brief
// staleness bounded by the memoization cache.
type AvailabilityRepository interface {
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	QuotasFor(ctx context.Context, itemID string, variationID, subeventID *string) ([]domain.Quota, error)
	HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error)
}

// AvailabilityService computes the tri-state availability signal for an
// item or variation: remaining units are the minimum of
// size - committed - held(now) across every quota the item draws from.
type AvailabilityService struct {
	repo     AvailabilityRepository
	cache    *cache.Availability
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	lowStock int
}

func NewAvailabilityService(repo AvailabilityRepository, clk clock.Clock, logger *zap.Logger, opts ...AvailabilityOption) *AvailabilityService {
	svc := &AvailabilityService{
		repo:     repo,
		clock:    clk,
		logger:   logger,
		lowStock: defaultLowStockThreshold,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

const defaultLowStockThreshold = 10

type AvailabilityOption func(*AvailabilityService)

// WithLowStockThreshold marks availability as low when remaining units
// drop to n or below.
func WithLowStockThreshold(n int) AvailabilityOption {
	return func(s *AvailabilityService) {
		if n >= 0 {
			s.lowStock = n
		}
	}
}

// WithAvailabilityCache enables short-TTL memoization of resolved states.
func WithAvailabilityCache(c *cache.Availability) AvailabilityOption {
	return func(s *AvailabilityService) {
		s.cache = c
	}
}

// WithAvailabilityMetrics wires cache hit/miss counters.
func WithAvailabilityMetrics(m *metrics.Metrics) AvailabilityOption {
	return func(s *AvailabilityService) {
		s.metrics = m
	}
}

type AvailabilityQuery struct {
	ItemID      string
	VariationID *string
	SubeventID  *string
	Channel     string
}

// Resolve computes the availability signal for one item/variation. Results
// may be served from the cache within its TTL; every write path invalidates
// the affected quota keys.
func (s *AvailabilityService) Resolve(ctx context.Context, q AvailabilityQuery) (domain.Availability, error) {
	if q.ItemID == "" {
		return domain.Availability{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	key := cache.Key(q.ItemID, deref(q.VariationID), deref(q.SubeventID), q.Channel)

	if s.cache != nil {
		if got, ok := s.cache.Get(key, now); ok {
			s.metrics.IncCacheHits()
			return got, nil
		}
		s.metrics.IncCacheMisses()
	}

	item, err := s.repo.GetItem(ctx, q.ItemID)
	if err != nil {
		return domain.Availability{}, err
	}
	ev, err := s.repo.GetEvent(ctx, item.EventID)
	if err != nil {
		return domain.Availability{}, err
	}

	if !ev.PresaleRunning(now) {
		return domain.Availability{State: domain.AvailabilityGone, Reason: domain.ReasonSaleOver}, nil
	}
	if !item.Active || !item.AvailableOnChannel(q.Channel) {
		return domain.Availability{State: domain.AvailabilityGone, Reason: domain.ReasonUnavailable}, nil
	}

	quotas, err := s.repo.QuotasFor(ctx, q.ItemID, q.VariationID, q.SubeventID)
	if err != nil {
		return domain.Availability{}, err
	}
	if len(quotas) == 0 {
		// No quota bound: the shop shows "More info" rather than a count.
		return domain.Availability{State: domain.AvailabilityUnknown, Reason: domain.ReasonUnknown}, nil
	}

	quotaIDs := make([]string, 0, len(quotas))
	remaining := -1
	constrained := false
	for _, quota := range quotas {
		quotaIDs = append(quotaIDs, quota.ID)
		if quota.Unlimited() {
			continue
		}
		held, err := s.repo.HeldCount(ctx, quota.ID, now)
		if err != nil {
			return domain.Availability{}, err
		}
		left, clamped := quota.Remaining(held)
		if clamped {
			s.logger.Warn("quota overcommitted, clamping remaining to zero",
				zap.String("quota_id", quota.ID),
				zap.Int("size", *quota.Size),
				zap.Int("committed", quota.Committed),
				zap.Int("held", held),
			)
		}
		if !constrained || left < remaining {
			remaining = left
		}
		constrained = true
	}

	var result domain.Availability
	switch {
	case !constrained:
		result = domain.Availability{State: domain.AvailabilityOK, Reason: domain.ReasonOK}
	case remaining == 0:
		if ev.WaitingList {
			result = domain.Availability{State: domain.AvailabilityReserved, Remaining: &remaining, Reason: domain.ReasonWaitingList}
		} else {
			result = domain.Availability{State: domain.AvailabilityGone, Remaining: &remaining, Reason: domain.ReasonFull}
		}
	case remaining <= s.lowStock:
		result = domain.Availability{State: domain.AvailabilityOK, Remaining: &remaining, Low: true, Reason: domain.ReasonLow}
	default:
		result = domain.Availability{State: domain.AvailabilityOK, Remaining: &remaining, Reason: domain.ReasonOK}
	}

	if s.cache != nil {
		s.cache.Set(key, result, quotaIDs, now)
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

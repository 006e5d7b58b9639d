package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/cache"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/metrics"
)

// CartRepository is the transactional side of the hold ledger. Quota
// queries marked ForUpdate take row locks ordered by id, so concurrent
// holds against overlapping quota sets cannot deadlock or both observe
// stale availability.
type CartRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	GetVariation(ctx context.Context, variationID string) (domain.Variation, error)
	GetSubevent(ctx context.Context, subeventID string) (domain.Subevent, error)
	QuotasForUpdate(ctx context.Context, itemID string, variationID, subeventID *string) ([]domain.Quota, error)
	HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error)
	CreatePosition(ctx context.Context, pos domain.CartPosition) error
	GetPosition(ctx context.Context, positionID string) (domain.CartPosition, error)
	RenewPosition(ctx context.Context, positionID string, expiresAt, now time.Time) (bool, error)
	DeletePosition(ctx context.Context, positionID string) (domain.CartPosition, error)
	DeleteExpiredPositions(ctx context.Context, now time.Time) (int, []string, error)
	ListActivePositions(ctx context.Context, cartID string, now time.Time) ([]domain.CartPosition, error)
}

// CartService is the hold ledger: it places, renews, releases and sweeps
// the expiring reservations that count against quotas until they either
// expire or convert into an order.
type CartService struct {
	repo    CartRepository
	clock   clock.Clock
	logger  *zap.Logger
	cache   *cache.Availability
	metrics *metrics.Metrics
	holdTTL time.Duration
}

const defaultHoldTTL = 15 * time.Minute

func NewCartService(repo CartRepository, clk clock.Clock, logger *zap.Logger, opts ...CartOption) *CartService {
	svc := &CartService{
		repo:    repo,
		clock:   clk,
		logger:  logger,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CartOption func(*CartService)

// WithHoldTTL overrides the default TTL for new positions.
func WithHoldTTL(d time.Duration) CartOption {
	return func(s *CartService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithCartCache lets the ledger invalidate memoized availability whenever
// held counts change.
func WithCartCache(c *cache.Availability) CartOption {
	return func(s *CartService) {
		s.cache = c
	}
}

// WithCartMetrics wires hold counters.
func WithCartMetrics(m *metrics.Metrics) CartOption {
	return func(s *CartService) {
		s.metrics = m
	}
}

type PlaceHoldInput struct {
	CartID      string
	ItemID      string
	VariationID *string
	SubeventID  *string
	Channel     string
	// TTL overrides the service default when positive.
	TTL time.Duration
}

// PlaceHold reserves one unit of an item/variation inside a cart. The
// availability re-check and the insert happen in one transaction under
// row locks on every applicable quota, all-or-nothing.
func (s *CartService) PlaceHold(ctx context.Context, in PlaceHoldInput) (domain.CartPosition, error) {
	if in.CartID == "" || in.ItemID == "" {
		return domain.CartPosition{}, domain.ErrInvalidID
	}
	ttl := s.holdTTL
	if in.TTL > 0 {
		ttl = in.TTL
	}
	now := s.clock.Now()

	var result domain.CartPosition
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.repo.GetItem(txCtx, in.ItemID)
		if err != nil {
			return err
		}
		ev, err := s.repo.GetEvent(txCtx, item.EventID)
		if err != nil {
			return err
		}
		if !ev.PresaleRunning(now) {
			return domain.ErrSaleNotRunning
		}
		if !item.Active || !item.AvailableOnChannel(in.Channel) {
			return domain.ErrItemUnavailable
		}

		price := item.Price
		if in.VariationID != nil {
			variation, err := s.repo.GetVariation(txCtx, *in.VariationID)
			if err != nil {
				return err
			}
			if variation.ItemID != item.ID {
				return domain.ErrItemNotFound
			}
			price = variation.Price
		}
		if in.SubeventID != nil {
			subevent, err := s.repo.GetSubevent(txCtx, *in.SubeventID)
			if err != nil {
				return err
			}
			if subevent.EventID != ev.ID {
				return domain.ErrSubeventNotFound
			}
		}

		quotas, err := s.repo.QuotasForUpdate(txCtx, in.ItemID, in.VariationID, in.SubeventID)
		if err != nil {
			return err
		}
		quotaIDs := make([]string, 0, len(quotas))
		for _, quota := range quotas {
			quotaIDs = append(quotaIDs, quota.ID)
			if quota.Unlimited() {
				continue
			}
			held, err := s.repo.HeldCount(txCtx, quota.ID, now)
			if err != nil {
				return err
			}
			remaining, clamped := quota.Remaining(held)
			if clamped {
				s.logger.Warn("quota overcommitted during hold placement",
					zap.String("quota_id", quota.ID),
					zap.Int("committed", quota.Committed),
					zap.Int("held", held),
				)
			}
			if remaining < 1 {
				return domain.ErrQuotaExceeded
			}
		}

		pos := domain.CartPosition{
			ID:          newID(),
			CartID:      in.CartID,
			EventID:     ev.ID,
			ItemID:      &item.ID,
			VariationID: in.VariationID,
			SubeventID:  in.SubeventID,
			Price:       price,
			ExpiresAt:   now.Add(ttl),
			CreatedAt:   now,
			QuotaIDs:    quotaIDs,
		}
		if err := s.repo.CreatePosition(txCtx, pos); err != nil {
			return err
		}
		result = pos
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.IncHoldsRejected("quota_exceeded")
		}
		return domain.CartPosition{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(result.QuotaIDs...)
	}
	s.metrics.IncHoldsPlaced()
	return result, nil
}

// RenewHold extends a position's expiry from now. Expired or already
// consumed positions cannot be renewed.
func (s *CartService) RenewHold(ctx context.Context, positionID string, ttl time.Duration) (domain.CartPosition, error) {
	if positionID == "" {
		return domain.CartPosition{}, domain.ErrInvalidID
	}
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	now := s.clock.Now()

	// Renew and re-read share a transaction so a concurrent release
	// cannot slip between the two.
	var result domain.CartPosition
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		renewed, err := s.repo.RenewPosition(txCtx, positionID, now.Add(ttl), now)
		if err != nil {
			return err
		}
		if !renewed {
			return domain.ErrHoldNotFound
		}
		result, err = s.repo.GetPosition(txCtx, positionID)
		return err
	})
	if err != nil {
		return domain.CartPosition{}, err
	}
	return result, nil
}

// ReleaseHold removes a position (item removed from cart). Committed
// counts are untouched; the freed unit is visible to the next resolve.
func (s *CartService) ReleaseHold(ctx context.Context, positionID string) error {
	if positionID == "" {
		return domain.ErrInvalidID
	}
	pos, err := s.repo.DeletePosition(ctx, positionID)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(pos.QuotaIDs...)
	}
	s.metrics.IncHoldsReleased()
	return nil
}

// ListPositions returns a cart's active (non-expired) positions.
func (s *CartService) ListPositions(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	if cartID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListActivePositions(ctx, cartID, s.clock.Now())
}

// SweepExpired deletes positions whose expiry has passed. Held-count
// queries already filter by expiry, so this is cleanup, not correctness;
// delete-if-expired is idempotent and safe to run concurrently.
func (s *CartService) SweepExpired(ctx context.Context) (int, error) {
	deleted, quotaIDs, err := s.repo.DeleteExpiredPositions(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		if s.cache != nil {
			s.cache.Invalidate(quotaIDs...)
		}
		s.metrics.AddHoldsSwept(deleted)
		s.logger.Debug("swept expired cart positions", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// RunSweeper runs SweepExpired on the given interval until ctx is done.
func (s *CartService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/cache"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/event"
	"github.com/carpentries/pretix/internal/metrics"
)

// OrderRepository is the commit side of the ledger. QuotasForUpdateByIDs
// and VouchersForUpdate lock rows in id order; CreateOrder surfaces
// ErrIdempotencyConflict on the unique cart constraint. Concurrent
// commits of the same cart serialize on ListPositionsForUpdate, so the
// order read that follows it sees whatever a winning commit created.
type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderByCartID(ctx context.Context, cartID string) (*domain.Order, error)
	ListPositionsForUpdate(ctx context.Context, cartID string) ([]domain.CartPosition, error)
	QuotasForUpdateByIDs(ctx context.Context, quotaIDs []string) ([]domain.Quota, error)
	HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error)
	VouchersForUpdate(ctx context.Context, voucherIDs []string) ([]domain.Voucher, error)
	IncrementCommitted(ctx context.Context, quotaID string, by int) error
	IncrementRedeemed(ctx context.Context, voucherID string, by int) error
	CreateOrder(ctx context.Context, order domain.Order, lines []domain.OrderLine) error
	DeletePositions(ctx context.Context, positionIDs []string) error
}

// OrderService converts a cart's holds into permanent commitments: quota
// committed counters and voucher redemption counts move in the same
// transaction that deletes the holds, so the sum of committed and held
// never spikes past the quota size.
type OrderService struct {
	repo      OrderRepository
	clock     clock.Clock
	logger    *zap.Logger
	cache     *cache.Availability
	metrics   *metrics.Metrics
	publisher event.Publisher
}

func NewOrderService(repo OrderRepository, clk clock.Clock, logger *zap.Logger, opts ...OrderOption) *OrderService {
	svc := &OrderService{
		repo:      repo,
		clock:     clk,
		logger:    logger,
		publisher: event.Noop{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderOption func(*OrderService)

// WithOrderCache lets commits invalidate memoized availability.
func WithOrderCache(c *cache.Availability) OrderOption {
	return func(s *OrderService) {
		s.cache = c
	}
}

// WithOrderMetrics wires the committed counter.
func WithOrderMetrics(m *metrics.Metrics) OrderOption {
	return func(s *OrderService) {
		s.metrics = m
	}
}

// WithOrderPublisher emits order.confirmed events after commit.
func WithOrderPublisher(p event.Publisher) OrderOption {
	return func(s *OrderService) {
		if p != nil {
			s.publisher = p
		}
	}
}

type CommitCartInput struct {
	CartID         string
	IdempotencyKey string
}

type CommitCartResult struct {
	Order   domain.Order
	Lines   []domain.OrderLine
	Created bool
}

// CommitCart converts every active position of a cart into an order.
// Retries with the same idempotency key return the existing order; a
// different key against an already committed cart is a conflict.
func (s *OrderService) CommitCart(ctx context.Context, in CommitCartInput) (CommitCartResult, error) {
	if in.CartID == "" {
		return CommitCartResult{}, domain.ErrInvalidID
	}
	if in.IdempotencyKey == "" {
		return CommitCartResult{}, domain.ErrIdempotencyKeyRequired
	}
	now := s.clock.Now()

	var result CommitCartResult
	var touchedQuotas []string
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Lock the cart's positions before reading the order row: a
		// concurrent commit of the same cart parks here on the row locks,
		// and once the winner commits the loser's locking scan skips the
		// deleted positions, so the idempotency read below must come
		// after the wait to see the winner's order.
		positions, err := s.repo.ListPositionsForUpdate(txCtx, in.CartID)
		if err != nil {
			return err
		}
		existing, err := s.repo.GetOrderByCartID(txCtx, in.CartID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.IdempotencyKey != in.IdempotencyKey {
				return domain.ErrIdempotencyConflict
			}
			result = CommitCartResult{Order: *existing, Created: false}
			return nil
		}
		if len(positions) == 0 {
			return domain.ErrCartEmpty
		}
		for _, pos := range positions {
			if pos.Expired(now) {
				return domain.ErrHoldExpired
			}
			if pos.EventID != positions[0].EventID {
				return domain.ErrCartMixedEvents
			}
		}

		quotaNeeds := make(map[string]int)
		voucherNeeds := make(map[string]int)
		var total int64
		for _, pos := range positions {
			total += pos.Price
			for _, q := range pos.QuotaIDs {
				quotaNeeds[q]++
			}
			if pos.VoucherID != nil {
				voucherNeeds[*pos.VoucherID]++
			}
		}

		quotas, err := s.repo.QuotasForUpdateByIDs(txCtx, sortedKeys(quotaNeeds))
		if err != nil {
			return err
		}
		for _, quota := range quotas {
			if quota.Unlimited() {
				continue
			}
			held, err := s.repo.HeldCount(txCtx, quota.ID, now)
			if err != nil {
				return err
			}
			if _, clamped := quota.Remaining(held); clamped {
				// The cart's own holds are part of held, so a deficit here
				// means the pool was oversold elsewhere.
				s.logger.Warn("quota overcommitted at commit time",
					zap.String("quota_id", quota.ID),
					zap.Int("committed", quota.Committed),
					zap.Int("held", held),
				)
				return domain.ErrQuotaExceeded
			}
		}

		vouchers, err := s.repo.VouchersForUpdate(txCtx, sortedKeys(voucherNeeds))
		if err != nil {
			return err
		}
		for _, voucher := range vouchers {
			if voucher.Redeemed+voucherNeeds[voucher.ID] > voucher.MaxUsages {
				return domain.ErrVoucherRedeemed
			}
		}

		order := domain.Order{
			ID:             newID(),
			EventID:        positions[0].EventID,
			CartID:         in.CartID,
			Total:          total,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		lines := make([]domain.OrderLine, 0, len(positions))
		positionIDs := make([]string, 0, len(positions))
		for _, pos := range positions {
			positionIDs = append(positionIDs, pos.ID)
			lines = append(lines, domain.OrderLine{
				ID:          newID(),
				OrderID:     order.ID,
				ItemID:      pos.ItemID,
				VariationID: pos.VariationID,
				SubeventID:  pos.SubeventID,
				VoucherID:   pos.VoucherID,
				Price:       pos.Price,
			})
		}

		if err := s.repo.CreateOrder(txCtx, order, lines); err != nil {
			return err
		}

		for quotaID, n := range quotaNeeds {
			if err := s.repo.IncrementCommitted(txCtx, quotaID, n); err != nil {
				return err
			}
		}
		for voucherID, n := range voucherNeeds {
			if err := s.repo.IncrementRedeemed(txCtx, voucherID, n); err != nil {
				return err
			}
		}
		if err := s.repo.DeletePositions(txCtx, positionIDs); err != nil {
			return err
		}

		touchedQuotas = sortedKeys(quotaNeeds)
		result = CommitCartResult{Order: order, Lines: lines, Created: true}
		return nil
	})
	if err != nil {
		return CommitCartResult{}, err
	}

	if result.Created {
		if s.cache != nil {
			s.cache.Invalidate(touchedQuotas...)
		}
		s.metrics.IncOrdersCommitted()
		if err := s.publisher.PublishOrderConfirmed(ctx, event.OrderConfirmed{
			OrderID:   result.Order.ID,
			EventID:   result.Order.EventID,
			CartID:    result.Order.CartID,
			Total:     result.Order.Total,
			Positions: len(result.Lines),
			CreatedAt: result.Order.CreatedAt,
		}); err != nil {
			// Publishing is best effort; the order is already committed.
			s.logger.Error("publish order confirmed", zap.Error(err), zap.String("order_id", result.Order.ID))
		}
	}
	return result, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/metrics"
)

// VoucherRepository locks the voucher row on the apply path; the active
// hold count query runs inside that lock so two concurrent applies of a
// nearly exhausted code cannot both pass.
type VoucherRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetVoucherByCodeForUpdate(ctx context.Context, code string) (domain.Voucher, error)
	CountActiveVoucherHolds(ctx context.Context, voucherID string, now time.Time) (int, error)
	CreatePosition(ctx context.Context, pos domain.CartPosition) error
}

// VoucherService tracks a voucher's redemption cap against confirmed
// redemptions and in-cart holds.
type VoucherService struct {
	repo    VoucherRepository
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	holdTTL time.Duration
}

func NewVoucherService(repo VoucherRepository, clk clock.Clock, logger *zap.Logger, opts ...VoucherOption) *VoucherService {
	svc := &VoucherService{
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

type VoucherOption func(*VoucherService)

// WithVoucherHoldTTL overrides the default TTL for voucher holds.
func WithVoucherHoldTTL(d time.Duration) VoucherOption {
	return func(s *VoucherService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithVoucherMetrics wires the applied counter.
func WithVoucherMetrics(m *metrics.Metrics) VoucherOption {
	return func(s *VoucherService) {
		s.metrics = m
	}
}

type ApplyVoucherInput struct {
	CartID string
	Code   string
	TTL    time.Duration
}

// Apply checks a voucher code and, if usable, places a hold on one usage.
// Lookup is case-insensitive. The usage-exhaustion check deliberately runs
// before the expiry check, so a code that is both used up and expired
// reports "already used up"; callers also cannot tell confirmed
// redemptions apart from concurrent in-cart holds.
func (s *VoucherService) Apply(ctx context.Context, in ApplyVoucherInput) (domain.CartPosition, error) {
	if in.CartID == "" {
		return domain.CartPosition{}, domain.ErrInvalidID
	}
	if in.Code == "" {
		return domain.CartPosition{}, domain.ErrVoucherInvalid
	}
	ttl := s.holdTTL
	if in.TTL > 0 {
		ttl = in.TTL
	}
	now := s.clock.Now()

	var result domain.CartPosition
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		voucher, err := s.repo.GetVoucherByCodeForUpdate(txCtx, in.Code)
		if err != nil {
			return err
		}
		activeHolds, err := s.repo.CountActiveVoucherHolds(txCtx, voucher.ID, now)
		if err != nil {
			return err
		}
		if voucher.AvailableUsages(activeHolds) < 1 {
			return domain.ErrVoucherRedeemed
		}
		if voucher.ExpiredAt(now) {
			return domain.ErrVoucherExpired
		}

		pos := domain.CartPosition{
			ID:        newID(),
			CartID:    in.CartID,
			EventID:   voucher.EventID,
			VoucherID: &voucher.ID,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		if err := s.repo.CreatePosition(txCtx, pos); err != nil {
			return err
		}
		result = pos
		return nil
	})
	if err != nil {
		return domain.CartPosition{}, err
	}

	s.metrics.IncVouchersApplied()
	s.logger.Debug("voucher hold placed",
		zap.String("voucher_id", deref(result.VoucherID)),
		zap.String("cart_id", in.CartID),
	)
	return result, nil
}

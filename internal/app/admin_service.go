package app

import (
	"context"
	"strings"
	"time"

	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
)

type AdminRepository interface {
	CreateEvent(ctx context.Context, ev domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateSubevent(ctx context.Context, se domain.Subevent) error
	ListSubeventsByEvent(ctx context.Context, eventID string) ([]domain.Subevent, error)
	CreateItem(ctx context.Context, item domain.Item, variations []domain.Variation) error
	ListItemsByEvent(ctx context.Context, eventID string) ([]domain.Item, error)
	CreateQuota(ctx context.Context, quota domain.Quota, links []domain.QuotaItem) error
	ListQuotasByEvent(ctx context.Context, eventID string) ([]domain.Quota, error)
	CreateVoucher(ctx context.Context, voucher domain.Voucher) error
}

// AdminService manages the catalog: events, subevents, items, quotas and
// vouchers. Validation lives here; repositories only map constraint
// violations.
type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{repo: repo, clock: clk}
}

type CreateEventInput struct {
	Name        string
	StartsAt    *time.Time
	SaleStart   *time.Time
	SaleEnd     *time.Time
	WaitingList bool
}

func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	if in.Name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	now := s.clock.Now()
	startsAt := now
	if in.StartsAt != nil {
		startsAt = *in.StartsAt
	}

	ev := domain.Event{
		ID:          newID(),
		Name:        in.Name,
		StartsAt:    startsAt,
		SaleStart:   in.SaleStart,
		SaleEnd:     in.SaleEnd,
		WaitingList: in.WaitingList,
		CreatedAt:   now,
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func (s *AdminService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

type CreateSubeventInput struct {
	EventID  string
	Name     string
	StartsAt time.Time
}

func (s *AdminService) CreateSubevent(ctx context.Context, in CreateSubeventInput) (domain.Subevent, error) {
	if in.EventID == "" {
		return domain.Subevent{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.Subevent{}, domain.ErrEventNameRequired
	}
	se := domain.Subevent{
		ID:       newID(),
		EventID:  in.EventID,
		Name:     in.Name,
		StartsAt: in.StartsAt,
	}
	if err := s.repo.CreateSubevent(ctx, se); err != nil {
		return domain.Subevent{}, err
	}
	return se, nil
}

func (s *AdminService) ListSubevents(ctx context.Context, eventID string) ([]domain.Subevent, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListSubeventsByEvent(ctx, eventID)
}

type CreateItemInput struct {
	EventID     string
	Name        string
	Price       int64
	Active      bool
	Channels    []string
	MinPerOrder int
	MaxPerOrder int
	Variations  []CreateVariationInput
}

type CreateVariationInput struct {
	Name  string
	Price int64
}

func (s *AdminService) CreateItem(ctx context.Context, in CreateItemInput) (domain.Item, []domain.Variation, error) {
	if in.EventID == "" {
		return domain.Item{}, nil, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.Item{}, nil, domain.ErrItemNameRequired
	}

	item := domain.Item{
		ID:          newID(),
		EventID:     in.EventID,
		Name:        in.Name,
		Price:       in.Price,
		Active:      in.Active,
		Channels:    in.Channels,
		MinPerOrder: in.MinPerOrder,
		MaxPerOrder: in.MaxPerOrder,
		CreatedAt:   s.clock.Now(),
	}
	variations := make([]domain.Variation, 0, len(in.Variations))
	for _, v := range in.Variations {
		if v.Name == "" {
			return domain.Item{}, nil, domain.ErrItemNameRequired
		}
		variations = append(variations, domain.Variation{
			ID:     newID(),
			ItemID: item.ID,
			Name:   v.Name,
			Price:  v.Price,
		})
	}

	if err := s.repo.CreateItem(ctx, item, variations); err != nil {
		return domain.Item{}, nil, err
	}
	return item, variations, nil
}

func (s *AdminService) ListItems(ctx context.Context, eventID string) ([]domain.Item, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListItemsByEvent(ctx, eventID)
}

type CreateQuotaInput struct {
	EventID    string
	SubeventID *string
	Name       string
	// Size nil means unlimited.
	Size *int
	// Items lists (item, variation?) pairs the quota constrains.
	Items []QuotaItemInput
}

type QuotaItemInput struct {
	ItemID      string
	VariationID *string
}

func (s *AdminService) CreateQuota(ctx context.Context, in CreateQuotaInput) (domain.Quota, error) {
	if in.EventID == "" {
		return domain.Quota{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.Quota{}, domain.ErrQuotaNameRequired
	}
	if in.Size != nil && *in.Size < 0 {
		return domain.Quota{}, domain.ErrInvalidCapacity
	}

	quota := domain.Quota{
		ID:         newID(),
		EventID:    in.EventID,
		SubeventID: in.SubeventID,
		Name:       in.Name,
		Size:       in.Size,
		CreatedAt:  s.clock.Now(),
	}
	links := make([]domain.QuotaItem, 0, len(in.Items))
	for _, link := range in.Items {
		if link.ItemID == "" {
			return domain.Quota{}, domain.ErrInvalidID
		}
		links = append(links, domain.QuotaItem{
			QuotaID:     quota.ID,
			ItemID:      link.ItemID,
			VariationID: link.VariationID,
		})
	}

	if err := s.repo.CreateQuota(ctx, quota, links); err != nil {
		return domain.Quota{}, err
	}
	return quota, nil
}

func (s *AdminService) ListQuotas(ctx context.Context, eventID string) ([]domain.Quota, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListQuotasByEvent(ctx, eventID)
}

type CreateVoucherInput struct {
	EventID    string
	Code       string
	MaxUsages  int
	ValidUntil *time.Time
}

func (s *AdminService) CreateVoucher(ctx context.Context, in CreateVoucherInput) (domain.Voucher, error) {
	if in.EventID == "" {
		return domain.Voucher{}, domain.ErrInvalidID
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return domain.Voucher{}, domain.ErrVoucherInvalid
	}
	if in.MaxUsages < 1 {
		return domain.Voucher{}, domain.ErrInvalidUsages
	}

	voucher := domain.Voucher{
		ID:         newID(),
		EventID:    in.EventID,
		Code:       code,
		MaxUsages:  in.MaxUsages,
		ValidUntil: in.ValidUntil,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.CreateVoucher(ctx, voucher); err != nil {
		return domain.Voucher{}, err
	}
	return voucher, nil
}

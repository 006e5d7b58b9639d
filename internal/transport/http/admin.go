package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/domain"
)

// AdminAPI is the catalog-management surface.
type AdminAPI interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateSubevent(ctx context.Context, in app.CreateSubeventInput) (domain.Subevent, error)
	ListSubevents(ctx context.Context, eventID string) ([]domain.Subevent, error)
	CreateItem(ctx context.Context, in app.CreateItemInput) (domain.Item, []domain.Variation, error)
	ListItems(ctx context.Context, eventID string) ([]domain.Item, error)
	CreateQuota(ctx context.Context, in app.CreateQuotaInput) (domain.Quota, error)
	ListQuotas(ctx context.Context, eventID string) ([]domain.Quota, error)
	CreateVoucher(ctx context.Context, in app.CreateVoucherInput) (domain.Voucher, error)
}

func HandleAdminCreateEvent(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEventRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ev, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
			Name:        req.Name,
			StartsAt:    req.StartsAt,
			SaleStart:   req.SaleStart,
			SaleEnd:     req.SaleEnd,
			WaitingList: req.WaitingList,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEventResponse(ev))
	}
}

func HandleAdminListEvents(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]eventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, toEventResponse(ev))
		}
		writeJSON(w, http.StatusOK, listEventsResponse{Events: out})
	}
}

func HandleAdminCreateSubevent(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSubeventRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		se, err := svc.CreateSubevent(r.Context(), app.CreateSubeventInput{
			EventID:  chi.URLParam(r, "eventID"),
			Name:     req.Name,
			StartsAt: req.StartsAt,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, subeventResponse{
			ID: se.ID, EventID: se.EventID, Name: se.Name, StartsAt: se.StartsAt,
		})
	}
}

func HandleAdminListSubevents(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subevents, err := svc.ListSubevents(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]subeventResponse, 0, len(subevents))
		for _, se := range subevents {
			out = append(out, subeventResponse{ID: se.ID, EventID: se.EventID, Name: se.Name, StartsAt: se.StartsAt})
		}
		writeJSON(w, http.StatusOK, listSubeventsResponse{Subevents: out})
	}
}

func HandleAdminCreateItem(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in := app.CreateItemInput{
			EventID:     chi.URLParam(r, "eventID"),
			Name:        req.Name,
			Price:       req.Price,
			Active:      req.Active == nil || *req.Active,
			Channels:    req.Channels,
			MinPerOrder: req.MinPerOrder,
			MaxPerOrder: req.MaxPerOrder,
		}
		for _, v := range req.Variations {
			in.Variations = append(in.Variations, app.CreateVariationInput{Name: v.Name, Price: v.Price})
		}

		item, variations, err := svc.CreateItem(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toItemResponse(item, variations))
	}
}

func HandleAdminListItems(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListItems(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]itemResponse, 0, len(items))
		for _, item := range items {
			out = append(out, toItemResponse(item, nil))
		}
		writeJSON(w, http.StatusOK, listItemsResponse{Items: out})
	}
}

func HandleAdminCreateQuota(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQuotaRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in := app.CreateQuotaInput{
			EventID:    chi.URLParam(r, "eventID"),
			SubeventID: req.SubeventID,
			Name:       req.Name,
			Size:       req.Size,
		}
		for _, link := range req.Items {
			in.Items = append(in.Items, app.QuotaItemInput{ItemID: link.ItemID, VariationID: link.VariationID})
		}

		quota, err := svc.CreateQuota(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toQuotaResponse(quota))
	}
}

func HandleAdminListQuotas(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quotas, err := svc.ListQuotas(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]quotaResponse, 0, len(quotas))
		for _, quota := range quotas {
			out = append(out, toQuotaResponse(quota))
		}
		writeJSON(w, http.StatusOK, listQuotasResponse{Quotas: out})
	}
}

func HandleAdminCreateVoucher(svc AdminAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createVoucherRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		voucher, err := svc.CreateVoucher(r.Context(), app.CreateVoucherInput{
			EventID:    chi.URLParam(r, "eventID"),
			Code:       req.Code,
			MaxUsages:  req.MaxUsages,
			ValidUntil: req.ValidUntil,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, voucherResponse{
			ID:         voucher.ID,
			EventID:    voucher.EventID,
			Code:       voucher.Code,
			MaxUsages:  voucher.MaxUsages,
			Redeemed:   voucher.Redeemed,
			ValidUntil: voucher.ValidUntil,
		})
	}
}

type createEventRequest struct {
	Name        string     `json:"name"`
	StartsAt    *time.Time `json:"starts_at"`
	SaleStart   *time.Time `json:"sale_start"`
	SaleEnd     *time.Time `json:"sale_end"`
	WaitingList bool       `json:"waiting_list"`
}

type eventResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	StartsAt    time.Time  `json:"starts_at"`
	SaleStart   *time.Time `json:"sale_start,omitempty"`
	SaleEnd     *time.Time `json:"sale_end,omitempty"`
	WaitingList bool       `json:"waiting_list"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

func toEventResponse(ev domain.Event) eventResponse {
	return eventResponse{
		ID:          ev.ID,
		Name:        ev.Name,
		StartsAt:    ev.StartsAt,
		SaleStart:   ev.SaleStart,
		SaleEnd:     ev.SaleEnd,
		WaitingList: ev.WaitingList,
	}
}

type createSubeventRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type subeventResponse struct {
	ID       string    `json:"id"`
	EventID  string    `json:"event_id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type listSubeventsResponse struct {
	Subevents []subeventResponse `json:"subevents"`
}

type createItemRequest struct {
	Name        string                   `json:"name"`
	Price       int64                    `json:"price"`
	Active      *bool                    `json:"active"`
	Channels    []string                 `json:"channels"`
	MinPerOrder int                      `json:"min_per_order"`
	MaxPerOrder int                      `json:"max_per_order"`
	Variations  []createVariationRequest `json:"variations"`
}

type createVariationRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type itemResponse struct {
	ID         string              `json:"id"`
	EventID    string              `json:"event_id"`
	Name       string              `json:"name"`
	Price      int64               `json:"price"`
	Active     bool                `json:"active"`
	Channels   []string            `json:"channels,omitempty"`
	Variations []variationResponse `json:"variations,omitempty"`
}

type variationResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type listItemsResponse struct {
	Items []itemResponse `json:"items"`
}

func toItemResponse(item domain.Item, variations []domain.Variation) itemResponse {
	resp := itemResponse{
		ID:       item.ID,
		EventID:  item.EventID,
		Name:     item.Name,
		Price:    item.Price,
		Active:   item.Active,
		Channels: item.Channels,
	}
	for _, v := range variations {
		resp.Variations = append(resp.Variations, variationResponse{ID: v.ID, Name: v.Name, Price: v.Price})
	}
	return resp
}

type createQuotaRequest struct {
	Name       string             `json:"name"`
	SubeventID *string            `json:"subevent_id"`
	Size       *int               `json:"size"`
	Items      []quotaItemRequest `json:"items"`
}

type quotaItemRequest struct {
	ItemID      string  `json:"item_id"`
	VariationID *string `json:"variation_id"`
}

type quotaResponse struct {
	ID         string  `json:"id"`
	EventID    string  `json:"event_id"`
	SubeventID *string `json:"subevent_id,omitempty"`
	Name       string  `json:"name"`
	Size       *int    `json:"size"`
	Committed  int     `json:"committed"`
}

type listQuotasResponse struct {
	Quotas []quotaResponse `json:"quotas"`
}

func toQuotaResponse(q domain.Quota) quotaResponse {
	return quotaResponse{
		ID:         q.ID,
		EventID:    q.EventID,
		SubeventID: q.SubeventID,
		Name:       q.Name,
		Size:       q.Size,
		Committed:  q.Committed,
	}
}

type createVoucherRequest struct {
	Code       string     `json:"code"`
	MaxUsages  int        `json:"max_usages"`
	ValidUntil *time.Time `json:"valid_until"`
}

type voucherResponse struct {
	ID         string     `json:"id"`
	EventID    string     `json:"event_id"`
	Code       string     `json:"code"`
	MaxUsages  int        `json:"max_usages"`
	Redeemed   int        `json:"redeemed"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/domain"
)

// VoucherApplier places a voucher hold in a cart.
type VoucherApplier interface {
	Apply(ctx context.Context, in app.ApplyVoucherInput) (domain.CartPosition, error)
}

// HandleApplyVoucher checks a voucher code and holds one usage.
//
// POST /carts/{cartID}/voucher
func HandleApplyVoucher(svc VoucherApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyVoucherRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "missing_code", "code is required")
			return
		}

		pos, err := svc.Apply(r.Context(), app.ApplyVoucherInput{
			CartID: chi.URLParam(r, "cartID"),
			Code:   req.Code,
			TTL:    time.Duration(req.TTLSeconds) * time.Second,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPositionResponse(pos))
	}
}

// CartCommitter converts a cart into an order.
type CartCommitter interface {
	CommitCart(ctx context.Context, in app.CommitCartInput) (app.CommitCartResult, error)
}

// HandleCommitCart performs checkout. The idempotency key travels in a
// header so retries of the same request return the same order.
//
// POST /carts/{cartID}/checkout
func HandleCommitCart(svc CartCommitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			writeError(w, http.StatusBadRequest, codeIdempotencyRequired, "Idempotency-Key header is required")
			return
		}

		result, err := svc.CommitCart(r.Context(), app.CommitCartInput{
			CartID:         chi.URLParam(r, "cartID"),
			IdempotencyKey: key,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		lines := make([]orderLineResponse, 0, len(result.Lines))
		for _, line := range result.Lines {
			lines = append(lines, orderLineResponse{
				ID:          line.ID,
				ItemID:      line.ItemID,
				VariationID: line.VariationID,
				SubeventID:  line.SubeventID,
				VoucherID:   line.VoucherID,
				Price:       line.Price,
			})
		}
		writeJSON(w, status, orderResponse{
			ID:        result.Order.ID,
			EventID:   result.Order.EventID,
			CartID:    result.Order.CartID,
			Total:     result.Order.Total,
			CreatedAt: result.Order.CreatedAt,
			Lines:     lines,
		})
	}
}

type applyVoucherRequest struct {
	Code       string `json:"code"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	EventID   string              `json:"event_id"`
	CartID    string              `json:"cart_id"`
	Total     int64               `json:"total"`
	CreatedAt time.Time           `json:"created_at"`
	Lines     []orderLineResponse `json:"lines,omitempty"`
}

type orderLineResponse struct {
	ID          string  `json:"id"`
	ItemID      *string `json:"item_id,omitempty"`
	VariationID *string `json:"variation_id,omitempty"`
	SubeventID  *string `json:"subevent_id,omitempty"`
	VoucherID   *string `json:"voucher_id,omitempty"`
	Price       int64   `json:"price"`
}

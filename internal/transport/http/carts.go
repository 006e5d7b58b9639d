package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/domain"
)

// HoldLedger is what the cart endpoints need from the cart service.
type HoldLedger interface {
	PlaceHold(ctx context.Context, in app.PlaceHoldInput) (domain.CartPosition, error)
	RenewHold(ctx context.Context, positionID string, ttl time.Duration) (domain.CartPosition, error)
	ReleaseHold(ctx context.Context, positionID string) error
	ListPositions(ctx context.Context, cartID string) ([]domain.CartPosition, error)
}

// HandleListPositions returns a cart's active positions.
//
// GET /carts/{cartID}/positions
func HandleListPositions(svc HoldLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := svc.ListPositions(r.Context(), chi.URLParam(r, "cartID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]positionResponse, 0, len(positions))
		for _, pos := range positions {
			out = append(out, toPositionResponse(pos))
		}
		writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
	}
}

// HandlePlaceHold reserves one unit inside a cart.
//
// POST /carts/{cartID}/positions
func HandlePlaceHold(svc HoldLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeHoldRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ItemID == "" {
			writeError(w, http.StatusBadRequest, "missing_item", "item_id is required")
			return
		}

		pos, err := svc.PlaceHold(r.Context(), app.PlaceHoldInput{
			CartID:      chi.URLParam(r, "cartID"),
			ItemID:      req.ItemID,
			VariationID: req.VariationID,
			SubeventID:  req.SubeventID,
			Channel:     req.Channel,
			TTL:         time.Duration(req.TTLSeconds) * time.Second,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPositionResponse(pos))
	}
}

// HandleRenewHold extends a position's expiry.
//
// POST /positions/{positionID}/renew
func HandleRenewHold(svc HoldLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renewHoldRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		pos, err := svc.RenewHold(r.Context(),
			chi.URLParam(r, "positionID"),
			time.Duration(req.TTLSeconds)*time.Second,
		)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPositionResponse(pos))
	}
}

// HandleReleaseHold removes a position from its cart.
//
// DELETE /positions/{positionID}
func HandleReleaseHold(svc HoldLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ReleaseHold(r.Context(), chi.URLParam(r, "positionID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type placeHoldRequest struct {
	ItemID      string  `json:"item_id"`
	VariationID *string `json:"variation_id"`
	SubeventID  *string `json:"subevent_id"`
	Channel     string  `json:"channel"`
	TTLSeconds  int     `json:"ttl_seconds"`
}

type renewHoldRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type positionResponse struct {
	ID          string    `json:"id"`
	CartID      string    `json:"cart_id"`
	EventID     string    `json:"event_id"`
	ItemID      *string   `json:"item_id,omitempty"`
	VariationID *string   `json:"variation_id,omitempty"`
	SubeventID  *string   `json:"subevent_id,omitempty"`
	VoucherID   *string   `json:"voucher_id,omitempty"`
	Price       int64     `json:"price"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

func toPositionResponse(pos domain.CartPosition) positionResponse {
	return positionResponse{
		ID:          pos.ID,
		CartID:      pos.CartID,
		EventID:     pos.EventID,
		ItemID:      pos.ItemID,
		VariationID: pos.VariationID,
		SubeventID:  pos.SubeventID,
		VoucherID:   pos.VoucherID,
		Price:       pos.Price,
		ExpiresAt:   pos.ExpiresAt,
	}
}

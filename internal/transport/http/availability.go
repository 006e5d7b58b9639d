package http

import (
	"context"
	"net/http"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/domain"
)

// AvailabilityResolver is the minimal interface the availability endpoint
// needs.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, q app.AvailabilityQuery) (domain.Availability, error)
}

// HandleGetAvailability serves the tri-state availability signal for one
// item or variation.
//
// GET /availability?item=...&variation=...&subevent=...&channel=...
func HandleGetAvailability(svc AvailabilityResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := app.AvailabilityQuery{
			ItemID:      r.URL.Query().Get("item"),
			VariationID: optionalParam(r, "variation"),
			SubeventID:  optionalParam(r, "subevent"),
			Channel:     r.URL.Query().Get("channel"),
		}
		if query.ItemID == "" {
			writeError(w, http.StatusBadRequest, "missing_item", "item query parameter is required")
			return
		}

		availability, err := svc.Resolve(r.Context(), query)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, availabilityResponse{
			State:     string(availability.State),
			Remaining: availability.Remaining,
			Low:       availability.Low,
			Reason:    availability.Reason,
		})
	}
}

type availabilityResponse struct {
	State     string `json:"state"`
	Remaining *int   `json:"remaining,omitempty"`
	Low       bool   `json:"low"`
	Reason    string `json:"reason"`
}

func optionalParam(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

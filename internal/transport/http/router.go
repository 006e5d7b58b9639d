package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles what the router wires up.
type Services struct {
	Availability AvailabilityResolver
	Cart         HoldLedger
	Voucher      VoucherApplier
	Order        CartCommitter
	Admin        AdminAPI
}

// RouterOptions carries the cross-cutting pieces.
type RouterOptions struct {
	Logger      *zap.Logger
	CORSOrigins []string
	// Readiness gates the health endpoint; nil means always ready.
	Readiness func() bool
	// MetricsGatherer serves /metrics when set.
	MetricsGatherer prometheus.Gatherer
}

// NewRouter builds the full HTTP surface of the API.
func NewRouter(svcs Services, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	if opts.Logger != nil {
		r.Use(RequestLogger(opts.Logger))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(CORS(opts.CORSOrigins))
	}

	r.Get("/health", HealthHandler(opts.Readiness))
	if opts.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/availability", HandleGetAvailability(svcs.Availability))

	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Get("/positions", HandleListPositions(svcs.Cart))
		r.Post("/positions", HandlePlaceHold(svcs.Cart))
		r.Post("/voucher", HandleApplyVoucher(svcs.Voucher))
		r.Post("/checkout", HandleCommitCart(svcs.Order))
	})

	r.Route("/positions/{positionID}", func(r chi.Router) {
		r.Post("/renew", HandleRenewHold(svcs.Cart))
		r.Delete("/", HandleReleaseHold(svcs.Cart))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/events", HandleAdminCreateEvent(svcs.Admin))
		r.Get("/events", HandleAdminListEvents(svcs.Admin))
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Post("/subevents", HandleAdminCreateSubevent(svcs.Admin))
			r.Get("/subevents", HandleAdminListSubevents(svcs.Admin))
			r.Post("/items", HandleAdminCreateItem(svcs.Admin))
			r.Get("/items", HandleAdminListItems(svcs.Admin))
			r.Post("/quotas", HandleAdminCreateQuota(svcs.Admin))
			r.Get("/quotas", HandleAdminListQuotas(svcs.Admin))
			r.Post("/vouchers", HandleAdminCreateVoucher(svcs.Admin))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tundeoa/sokohub-backend/api/controllers"
	webhookcontrollers "github.com/tundeoa/sokohub-backend/api/controllers/webhooks"
	"github.com/tundeoa/sokohub-backend/api/middleware"
	checkoutsvc "github.com/tundeoa/sokohub-backend/internal/checkout"
	"github.com/tundeoa/sokohub-backend/internal/notifications"
	"github.com/tundeoa/sokohub-backend/internal/orders"
	"github.com/tundeoa/sokohub-backend/internal/settlement"
	"github.com/tundeoa/sokohub-backend/pkg/config"
	"github.com/tundeoa/sokohub-backend/pkg/enums"
	"github.com/tundeoa/sokohub-backend/pkg/logger"
	"github.com/tundeoa/sokohub-backend/pkg/metrics"
	"github.com/tundeoa/sokohub-backend/pkg/paystack"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           controllers.Pinger
	RateLimiter     middleware.RateLimiterStore
	Paystack        *paystack.Client
	Checkout        checkoutsvc.Service
	Settlement      settlement.Service
	Orders          orders.Service
	Notifications   notifications.Service
	HTTPMetrics     *metrics.HTTPMetrics
	MetricsHandler  http.Handler
	CheckoutLimiter middleware.RateLimitPolicy
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.Paystack(deps.Settlement, deps.Paystack, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.With(
				middleware.RequireRole(enums.ActorRoleBuyer, logg),
				middleware.RateLimit(deps.RateLimiter, deps.CheckoutLimiter, logg),
			).Post("/", controllers.Checkout(deps.Checkout, logg))
			r.With(middleware.RequireRole(enums.ActorRoleBuyer, logg)).
				Get("/confirm/{reference}", controllers.ConfirmCheckout(deps.Settlement, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Get("/{orderID}/history", controllers.OrderHistory(deps.Orders, logg))
			r.With(
				middleware.RequireRole(enums.ActorRoleSeller, logg),
				middleware.RequireShop(logg),
			).Patch("/{orderID}/status", controllers.TransitionOrder(deps.Orders, logg))
			r.With(middleware.RequireRole(enums.ActorRoleBuyer, logg)).
				Post("/{orderID}/confirm-delivery", controllers.ConfirmDelivery(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}

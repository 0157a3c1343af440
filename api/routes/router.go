package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/beatstore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/beatstore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/beatstore-backend/api/middleware"
	"github.com/angelmondragon/beatstore-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/licenses"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	"github.com/angelmondragon/beatstore-backend/internal/webhooks/dedupe"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/paypal"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

// Deps carries everything the HTTP surface is wired to. Nil services make
// their handlers answer 500; a nil Metrics handler drops /metrics.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB        db.Pinger
	Redis     redis.Pinger
	Responses middleware.ResponseStore
	Limiter   middleware.Limiter
	Tokens    middleware.TokenVerifier
	Metrics   http.Handler

	Cart         cart.Service
	Checkout     checkoutsvc.Service
	Transactions transactions.Service
	Licenses     licenses.Service
	IPN          webhookcontrollers.PayPalNotificationService
	PayPal       *paypal.Client
	IPNGuard     *dedupe.Guard
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paypal", paypalIPN(d))
	})

	// guest carts are addressed by their token and need no account
	r.Route("/api/v1/cart/guest", func(r chi.Router) {
		r.With(middleware.RateLimit(d.Limiter, "guest_cart", cfg.RateLimit.GuestCartLimit, cfg.RateLimit.GuestCartWindow, logg)).
			Post("/", controllers.CartGuestToken(d.Cart, logg))
		r.Route("/{token}", func(r chi.Router) {
			r.Get("/", controllers.CartGet(d.Cart, controllers.GuestCart, logg))
			r.Delete("/", controllers.CartClear(d.Cart, controllers.GuestCart, logg))
			r.Post("/items", controllers.CartAddItem(d.Cart, controllers.GuestCart, logg))
			r.Delete("/items/{beatId}", controllers.CartRemoveItem(d.Cart, controllers.GuestCart, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens, logg))
		once := middleware.Idempotent(d.Responses, logg, middleware.IdempotencyTTL)
		checkoutOnce := middleware.Idempotent(d.Responses, logg, middleware.CheckoutIdempotencyTTL)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(d.Cart, controllers.AccountCart, logg))
			r.Delete("/", controllers.CartClear(d.Cart, controllers.AccountCart, logg))
			r.Post("/items", controllers.CartAddItem(d.Cart, controllers.AccountCart, logg))
			r.Delete("/items/{beatId}", controllers.CartRemoveItem(d.Cart, controllers.AccountCart, logg))
			r.With(once).Post("/import", controllers.CartImport(d.Cart, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.With(checkoutOnce).Post("/", controllers.Checkout(d.Checkout, logg))
			r.With(checkoutOnce).Post("/{token}/finalize", controllers.CheckoutFinalize(d.Checkout, logg))
			r.Post("/{token}/refresh", controllers.CheckoutRefresh(d.Checkout, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", controllers.TransactionsList(d.Transactions, logg))
			r.Get("/{id}", controllers.TransactionGet(d.Transactions, logg))
		})

		r.Route("/licenses", func(r chi.Router) {
			r.Get("/", controllers.LicenseList(d.Licenses, logg))
			r.With(once).Post("/", controllers.LicenseCreate(d.Licenses, logg))
			r.Get("/{id}", controllers.LicenseGet(d.Licenses, logg))
			r.Post("/{id}", controllers.LicenseUpdate(d.Licenses, logg))
			r.Patch("/{id}", controllers.LicenseUpdate(d.Licenses, logg))
			r.Delete("/{id}", controllers.LicenseDelete(d.Licenses, logg))
		})
	})

	return r
}

// paypalIPN keeps a missing client or guard a nil interface so the handler
// answers 500 instead of dereferencing a typed nil pointer.
func paypalIPN(d Deps) http.HandlerFunc {
	if d.PayPal == nil || d.IPNGuard == nil {
		return webhookcontrollers.PayPalIPN(d.IPN, nil, nil, d.Logger)
	}
	return webhookcontrollers.PayPalIPN(d.IPN, d.PayPal, d.IPNGuard, d.Logger)
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rohanmalik/merakistore-backend/api/controllers"
	"github.com/rohanmalik/merakistore-backend/api/middleware"
	addresssvc "github.com/rohanmalik/merakistore-backend/internal/address"
	authsvc "github.com/rohanmalik/merakistore-backend/internal/auth"
	cartsvc "github.com/rohanmalik/merakistore-backend/internal/cart"
	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	checkoutsvc "github.com/rohanmalik/merakistore-backend/internal/checkout"
	orderssvc "github.com/rohanmalik/merakistore-backend/internal/orders"
	"github.com/rohanmalik/merakistore-backend/pkg/auth/session"
	"github.com/rohanmalik/merakistore-backend/pkg/config"
	"github.com/rohanmalik/merakistore-backend/pkg/db"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	"github.com/rohanmalik/merakistore-backend/pkg/metrics"
	"github.com/rohanmalik/merakistore-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sessionManager *session.Manager,
	httpMetrics *metrics.HTTPMetrics,
	registry *prometheus.Registry,
	authService authsvc.Service,
	catalogRepo *catalog.Repository,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	ordersService orderssvc.Service,
	addressService addresssvc.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.GuestIdentity(cfg.Guest, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(
				middleware.AuthRateLimit(loginPolicy, redisClient, logg),
			).Post("/login", controllers.AuthLogin(authService, logg))
			r.With(
				middleware.AuthRateLimit(registerPolicy, redisClient, logg),
				middleware.Idempotency(redisClient, logg),
			).Post("/register", controllers.AuthRegister(authService, logg))
			r.With(
				middleware.Auth(cfg.JWT, sessionManager, logg),
			).Post("/logout", controllers.AuthLogout(authService, logg))
			r.Post("/refresh", controllers.AuthRefresh(authService, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(catalogRepo, logg))
			r.Get("/{slug}", controllers.ProductDetail(catalogRepo, logg))
		})

		// Cart is owner-keyed: guests ride the visitor cookie, signed-in
		// shoppers their user id.
		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, sessionManager, logg))
			r.Get("/", controllers.CartGet(cartService, logg))
			r.Post("/add", controllers.CartAdd(cartService, logg))
			r.Patch("/qty", controllers.CartSetQuantity(cartService, logg))
			r.Patch("/item/options", controllers.CartChangeOptions(cartService, logg))
			r.Patch("/item/select", controllers.CartSetSelection(cartService, logg))
			r.Patch("/select-all", controllers.CartSelectAll(cartService, logg))
			r.Delete("/item/{itemId}", controllers.CartRemoveLine(cartService, logg))
			r.Delete("/clear", controllers.CartClear(cartService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/summary", controllers.CheckoutSummary(checkoutService, logg))
				r.Post("/cod", controllers.CheckoutPlaceCod(checkoutService, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(ordersService, logg))
				r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
				r.Post("/{orderId}/cancel", controllers.OrderCancel(ordersService, logg))
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(addressService, logg))
				r.Post("/", controllers.AddressCreate(addressService, logg))
				r.Patch("/{addressId}", controllers.AddressUpdate(addressService, logg))
				r.Delete("/{addressId}", controllers.AddressDelete(addressService, logg))
				r.Post("/{addressId}/default", controllers.AddressSetDefault(addressService, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
			r.Use(middleware.RequireAdmin(logg))
			r.Patch("/orders/{orderId}/status", controllers.AdminOrderAdvance(ordersService, logg))
		})
	})

	return r
}

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ai-consultation/billing/internal/billing/handler"
	"github.com/ai-consultation/billing/internal/billing/job"
	"github.com/ai-consultation/billing/internal/billing/middleware"
	"github.com/ai-consultation/billing/internal/billing/reconcile"
	"github.com/ai-consultation/billing/internal/billing/store"
	billingstripe "github.com/ai-consultation/billing/internal/billing/stripe"
	sharedmw "github.com/ai-consultation/billing/internal/middleware"
	"github.com/ai-consultation/billing/internal/supabase"
)

const (
	publicRateLimit  = 20
	publicRateWindow = time.Minute
)

type Server struct {
	userStore    *store.UserStore
	stripeClient *billingstripe.Client
	verifier     middleware.TokenVerifier
	webhookH     *handler.WebhookHandler
	checkoutH    *handler.CheckoutHandler
	cancelH      *handler.CancelHandler
	accountH     *handler.AccountHandler
	maintenanceH *handler.MaintenanceHandler
	healthH      *handler.HealthHandler
	dailyReset   *job.DailyReset
	rateLimiter  *sharedmw.RateLimiter
	limiter      sharedmw.Limiter
	cfg          Config
	logger       *slog.Logger
}

type Config struct {
	Stripe                billingstripe.Config
	TicketPrices          reconcile.PriceTable
	Environment           string
	CORSAllowedOrigin     string
	RevokePremiumOnCancel bool
	CronSecret            string
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseJWTSecret     string
	// Redis, when set, backs the rate limiter so limits hold across instances.
	Redis *redis.Client
}

func New(db *pgxpool.Pool, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	stripeClient := billingstripe.NewClient(cfg.Stripe)

	s := &Server{
		userStore:    userStore,
		stripeClient: stripeClient,
		webhookH:     handler.NewWebhookHandler(stripeClient, userStore, cfg.TicketPrices, logger.With("component", "webhook")),
		checkoutH:    handler.NewCheckoutHandler(stripeClient, cfg.TicketPrices, logger.With("component", "checkout")),
		cancelH:      handler.NewCancelHandler(stripeClient, userStore, cfg.RevokePremiumOnCancel, logger.With("component", "cancel")),
		healthH:      handler.NewHealthHandler(cfg.Environment),
		dailyReset:   job.NewDailyReset(userStore, logger.With("component", "daily-reset")),
		rateLimiter:  sharedmw.NewRateLimiter(),
		cfg:          cfg,
		logger:       logger,
	}
	s.maintenanceH = handler.NewMaintenanceHandler(s.dailyReset, logger.With("component", "maintenance"))

	s.limiter = s.rateLimiter
	if cfg.Redis != nil {
		s.limiter = sharedmw.NewRedisLimiter(cfg.Redis, "billing:ratelimit:")
	}

	// Keep the interface nil when verification is not configured.
	if cfg.SupabaseJWTSecret != "" {
		s.verifier = supabase.NewTokenVerifier(cfg.SupabaseJWTSecret)
	}
	admin := supabase.NewAdminClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	if s.verifier != nil && admin.Configured() {
		s.accountH = handler.NewAccountHandler(userStore, admin, logger.With("component", "account"))
	}

	return s
}

// RateLimiter returns the in-memory rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *sharedmw.RateLimiter {
	return s.rateLimiter
}

// DailyReset returns the quota reset job so the caller can start and stop it.
func (s *Server) DailyReset() *job.DailyReset {
	return s.dailyReset
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthH.Health)

	// Stripe webhook (public, signature-verified, not rate limited). The
	// aliases keep endpoints already registered with Stripe working.
	for _, path := range []string{"/webhooks/stripe", "/webhook", "/.netlify/functions/stripe-webhook"} {
		mux.HandleFunc("POST "+path, s.webhookH.HandleStripeWebhook)
	}

	optionalAuth := middleware.OptionalAuth(s.verifier, s.logger.With("component", "auth"))
	routes := []struct {
		paths []string
		h     http.HandlerFunc
	}{
		{[]string{"/api/create-checkout-session", "/.netlify/functions/create-checkout"}, s.checkoutH.CreateCheckoutSession},
		{[]string{"/api/create-ticket-checkout-session", "/.netlify/functions/create-ticket-checkout"}, s.checkoutH.CreateTicketCheckoutSession},
		{[]string{"/api/cancel-subscription", "/.netlify/functions/cancel-subscription"}, s.cancelH.CancelSubscription},
	}
	for _, rt := range routes {
		h := s.rateLimited(optionalAuth(rt.h))
		for _, path := range rt.paths {
			mux.Handle("POST "+path, h)
		}
	}

	if s.accountH != nil {
		requireAuth := middleware.RequireAuth(s.verifier, s.logger.With("component", "auth"))
		mux.Handle("POST /api/delete-account", s.rateLimited(requireAuth(http.HandlerFunc(s.accountH.DeleteAccount))))
	} else {
		s.logger.Warn("account deletion disabled: Supabase JWT secret, URL or service key not configured")
	}

	if s.cfg.CronSecret != "" {
		mux.Handle("POST /internal/reset-daily-quiz-count",
			sharedmw.RequireSecret(s.cfg.CronSecret)(http.HandlerFunc(s.maintenanceH.ResetDailyQuizCount)))
	}

	var h http.Handler = mux
	h = sharedmw.CORS(s.cfg.CORSAllowedOrigin)(h)
	h = sharedmw.SecurityHeaders(h)
	h = sharedmw.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	return sharedmw.RateLimit(s.limiter, sharedmw.RealIP, publicRateLimit, publicRateWindow, s.logger)(h)
}

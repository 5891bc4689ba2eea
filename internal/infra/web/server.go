package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/infra/logging"
	rds "cuenty-subscription-engine/internal/infra/redis"
	"cuenty-subscription-engine/internal/infra/security"
	"cuenty-subscription-engine/internal/usecase"
)

// RenewalTrigger lets the admin API kick a scheduler pass on demand.
type RenewalTrigger interface {
	RunOnce(ctx context.Context, now time.Time)
}

// Server is the admin API: read-side views (urgency, capacity, pricing,
// alerts) plus the explicit write operations an operator needs.
type Server struct {
	cfg      config.AdminConfig
	gates    config.AutomationConfig
	auth     *AuthManager
	poolUC   usecase.AccountPoolUseCase
	subUC    usecase.SubscriptionUseCase
	catUC    usecase.CatalogUseCase
	custUC   usecase.CustomerUseCase
	statsUC  usecase.StatsUseCase
	notifUC  usecase.NotificationUseCase
	snapshot *rds.SnapshotCache
	crypto   *security.EncryptionService
	trigger  RenewalTrigger
	log      *zerolog.Logger
}

func NewServer(
	cfg config.AdminConfig,
	gates config.AutomationConfig,
	dev bool,
	poolUC usecase.AccountPoolUseCase,
	subUC usecase.SubscriptionUseCase,
	catUC usecase.CatalogUseCase,
	custUC usecase.CustomerUseCase,
	statsUC usecase.StatsUseCase,
	notifUC usecase.NotificationUseCase,
	snapshot *rds.SnapshotCache,
	crypto *security.EncryptionService,
	trigger RenewalTrigger,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		cfg:      cfg,
		gates:    gates,
		auth:     NewAuthManager(cfg.JWTSecret, !dev, "", 30*time.Minute),
		poolUC:   poolUC,
		subUC:    subUC,
		catUC:    catUC,
		custUC:   custUC,
		statsUC:  statsUC,
		notifUC:  notifUC,
		snapshot: snapshot,
		crypto:   crypto,
		trigger:  trigger,
		log:      &l,
	}
}

// Router builds the chi mux with all routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/auth/login", s.handleLogin)
	r.Post("/api/v1/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/api/v1/stats/urgency", s.handleUrgency)
		r.Get("/api/v1/stats/status", s.handleStatusCounts)
		r.Get("/api/v1/capacity", s.handleCapacity)
		r.Get("/api/v1/alerts", s.handleAlerts)

		r.Post("/api/v1/accounts", s.handleAccountCreate)
		r.Post("/api/v1/accounts/{id}/deactivate", s.handleAccountDeactivate)

		r.Get("/api/v1/plans", s.handlePlanList)
		r.Post("/api/v1/plans", s.handlePlanCreate)
		r.Delete("/api/v1/plans/{id}", s.handlePlanDelete)

		r.Get("/api/v1/combos", s.handleComboList)
		r.Post("/api/v1/combos", s.handleComboCreate)
		r.Delete("/api/v1/combos/{id}", s.handleComboDelete)
		r.Get("/api/v1/combos/{id}/pricing", s.handleComboPricing)

		r.Get("/api/v1/customers", s.handleCustomerList)
		r.Post("/api/v1/customers", s.handleCustomerCreate)
		r.Get("/api/v1/customers/{id}/subscriptions", s.handleCustomerSubscriptions)

		r.Post("/api/v1/subscriptions", s.handleSubscriptionCreate)
		r.Get("/api/v1/subscriptions/{id}", s.handleSubscriptionGet)
		r.Post("/api/v1/subscriptions/{id}/confirm", s.handleSubscriptionConfirm)
		r.Post("/api/v1/subscriptions/{id}/cancel", s.handleSubscriptionCancel)
		r.Post("/api/v1/subscriptions/{id}/pause", s.handleSubscriptionPause)
		r.Post("/api/v1/subscriptions/{id}/resume", s.handleSubscriptionResume)
		r.Post("/api/v1/subscriptions/{id}/auto-renew", s.handleAutoRenew)
		r.Post("/api/v1/subscriptions/{id}/renew", s.handleForceRenew)
		r.Post("/api/v1/subscriptions/{id}/deliver-credentials", s.handleDeliverCredentials)

		r.Post("/api/v1/jobs/renewal/run", s.handleRenewalRun)
	})

	return r
}

// authenticate admits either the service API key or an admin JWT session.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" {
			hdr := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(hdr), "bearer ") &&
				strings.TrimSpace(hdr[7:]) == s.cfg.APIKey {
				next.ServeHTTP(w, r)
				return
			}
		}
		if _, err := s.auth.ParseFromRequest(r); err == nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		l := logging.With(r.Context(), s.log)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

// ListenAndServe blocks until ctx is cancelled, then drains with a grace
// period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Package server is the composition root: it opens the store, builds the
// services and handlers, and mounts them on one chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB → ledgers → Orchestrator / InvitationService → handlers → routes
//
// Every layer receives only what it needs. Handlers see service
// interfaces, services see repository.Store, and nothing but this package
// knows the concrete store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/recshare/internal/auth"
	"github.com/sakif/recshare/internal/config"
	"github.com/sakif/recshare/internal/handler"
	"github.com/sakif/recshare/internal/metrics"
	"github.com/sakif/recshare/internal/middleware"
	sqliteRepo "github.com/sakif/recshare/internal/repository/sqlite"
	"github.com/sakif/recshare/internal/service"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownTimeout = 30 * time.Second

// Server owns the database connection; Start closes it on the way out.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	tokens *auth.TokenService
}

// New opens the database, seeds the preset market items and wires the
// routes.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}
	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Router exposes the fully wired handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: request identity, read by the logger
//  2. Logger, metrics: see every response, including 401s and panics
//  3. Recoverer: turns a panic into a 500
//  4. CORS
//
// The /api group adds RequireAuth and then middleware.Actor, so the request
// log line carries the caller's user id.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authz := service.RoleAuthorizer{}
	presets := service.DefaultPresets(s.config.InvitationPrice, s.config.GiftPrice)

	currency := service.NewCurrencyLedger(s.logger)
	purchases := service.NewPurchaseLedger(s.db, authz, s.logger)
	market := service.NewMarketService(s.db, s.logger)
	orders := service.NewOrchestrator(service.OrchestratorDeps{
		Store:     s.db,
		Currency:  currency,
		Purchases: purchases,
		Notifier:  service.NewStoreNotifier(s.logger),
		Authz:     authz,
		Presets:   presets,
		Rewards: service.Rewards{
			Like:       s.config.LikeReward,
			AuthorLike: s.config.AuthorLikeReward,
		},
		Logger: s.logger,
	})
	invitations := service.NewInvitationService(s.db, auth.NewSecretHasher(), authz, s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := market.EnsurePresets(ctx, presets); err != nil {
		return fmt.Errorf("seeding presets: %w", err)
	}

	marketHandler := handler.NewMarketHandler(market, orders, s.logger)
	purchaseHandler := handler.NewPurchaseHandler(purchases, orders, s.logger)
	rewardHandler := handler.NewRewardHandler(orders, s.logger)
	invitationHandler := handler.NewInvitationHandler(invitations, s.logger)
	notificationHandler := handler.NewNotificationHandler(service.NewNotificationService(s.db, authz), s.logger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens))
		r.Use(middleware.Actor)

		r.Route("/market", func(r chi.Router) {
			r.Get("/", marketHandler.HandleSearch)
			r.Post("/", marketHandler.HandleCreate)
			r.Get("/{id}", marketHandler.HandleGet)
			r.Put("/{id}", marketHandler.HandleUpdate)
			r.Post("/{id}/buy", marketHandler.HandleBuy)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/purchases", purchaseHandler.HandleSearch)
			r.Post("/purchases/canned", purchaseHandler.HandleBuyCanned)
			r.Get("/purchases/{id}", purchaseHandler.HandleGet)
			r.Post("/purchases/{id}/redeem", purchaseHandler.HandleRedeem)
			r.Get("/invitations", invitationHandler.HandleList)
			r.Get("/notifications", notificationHandler.HandleList)
		})

		r.Post("/rewards/like", rewardHandler.HandleLike)
		r.Post("/rewards/unlike", rewardHandler.HandleUnlike)

		r.Post("/invitations", invitationHandler.HandleMint)
		r.Post("/invitations/consume", invitationHandler.HandleConsume)
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

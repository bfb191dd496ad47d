package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-co-op/gocron"

	"lotteria/internal/config"
	"lotteria/internal/db"
	"lotteria/internal/handlers"
	"lotteria/internal/log"
	"lotteria/internal/lottery"
	"lotteria/internal/middleware"
	"lotteria/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		base := log.Base()
		base.Fatal().Err(err).Msg("config")
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL, cfg.DatabaseToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("database init failed")
	}
	defer conn.Close()
	if err := db.EnsureAdmin(ctx, conn, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}
	logger.Info().Str("database", cfg.DatabaseURL).Msg("database initialized")

	var notifier notify.Notifier = notify.Noop{}
	var bot *notify.Telegram
	if cfg.TelegramToken != "" {
		bot, err = notify.NewTelegram(cfg.TelegramToken, log.WithComponent("telegram"))
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, notifications disabled")
		} else {
			notifier = bot
		}
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, bot features disabled")
	}

	svc := lottery.NewService(conn, notifier, lottery.Config{
		ExpiryWindow: cfg.ExpiryWindow,
		PrizeSplit:   cfg.PrizeSplit,
		MaxWinners:   cfg.MaxWinners,
	}, log.WithComponent("lottery"))

	if bot != nil {
		go bot.ListenCommands(ctx, svc, cfg.PublicURL, cfg.ExpiryWindow)
	}

	// Expiry sweep on a fixed cadence. The engine itself never
	// self-schedules.
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.SweepInterval).Do(func() {
		if _, err := svc.Sweep(ctx, time.Now().UTC(), cfg.ExpiryWindow); err != nil {
			logger.Error().Err(err).Msg("expiry sweep failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduling expiry sweep failed")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	sessions := middleware.NewSessionManager(24 * time.Hour)
	h := handlers.New(svc, conn, sessions, log.WithComponent("http"))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Public routes
	r.Get("/", h.Home)
	r.Get("/draws/{id}", h.DrawDetails)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(20, time.Minute))
		r.Post("/draws/{id}/reserve", h.Reserve)
	})

	// Admin login
	r.Get("/admin/login", h.LoginForm)
	r.Post("/admin/login", h.Login)
	r.Get("/admin/logout", h.Logout)

	// Admin routes (session protected)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(sessions))
		r.Get("/admin", h.Dashboard)
		r.Get("/admin/draws/new", h.CreateDrawForm)
		r.Post("/admin/draws", h.CreateDraw)
		r.Get("/admin/draws/{id}", h.AdminDrawDetails)
		r.Post("/admin/draws/{id}/execute", h.ExecuteDraw)
		r.Post("/admin/draws/{id}/reset", h.ResetDraw)
		r.Post("/admin/draws/{id}/delete", h.DeleteDraw)
		r.Post("/admin/tickets/{id}/approve", h.ApprovePayment)
		r.Post("/admin/tickets/{id}/reject", h.RejectPayment)
		r.Post("/admin/tickets/{id}/delete", h.DeleteTicket)
		r.Post("/admin/winners/{id}/delete", h.DeleteWinner)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}

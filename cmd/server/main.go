package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpapi "github.com/nextdooroldwang/sprite-house/internal/api/http"
	"github.com/nextdooroldwang/sprite-house/internal/config"
	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/registry"
	"github.com/nextdooroldwang/sprite-house/internal/relay"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
	"github.com/nextdooroldwang/sprite-house/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	reg := registry.New(cfg.Room.MaxUsers, domain.Position{X: cfg.Room.SpawnX, Y: cfg.Room.SpawnY})
	rel := relay.New(reg, log)

	roomController := httpapi.NewRoomController(reg, rel, log)
	router := httpapi.SetupRouter(roomController, cfg.CORS.AllowOrigins)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.Int("room_capacity", cfg.Room.MaxUsers),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", sl.Err(err))
	}

	log.Info("server exited")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

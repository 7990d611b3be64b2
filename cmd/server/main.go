package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/api"
	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing database...")
		_ = st.Close()
	}()

	validator, err := auth.NewHS256Validator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	var checker server.MembershipChecker
	if cfg.VerifyRoomMembership {
		checker = st
	}
	chat := server.NewHub("chat", cfg, checker, log)
	notifications := server.NewSessionHub("notifications", cfg, log)
	go chat.Run()
	go notifications.Run()

	dispatcher := server.NewDispatcher(chat, notifications, log)
	router := api.NewRouter(api.NewHandler(st, dispatcher, log), validator, cfg.CORSOrigins())
	server.SetupRoutes(router, server.NewGate(validator, cfg, log), chat, notifications)

	httpServer := server.CreateServer(cfg.Port, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		// Hubs first so upgraded connections are closed; http.Server.Shutdown
		// does not track hijacked connections.
		if err := chat.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.Warn("Chat hub shutdown incomplete", "error", err)
		}
		if err := notifications.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.Warn("Notification hub shutdown incomplete", "error", err)
		}
		return server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Program stopped cleanly")
	return nil
}

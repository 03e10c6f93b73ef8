package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/pairchat/internal/adapter/driven/auth"
	"github.com/Wyydra/pairchat/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/pairchat/internal/adapter/driven/media/pion"
	repo "github.com/Wyydra/pairchat/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/pairchat/internal/adapter/driven/storage/filesystem"
	handler "github.com/Wyydra/pairchat/internal/adapter/driving/http"
	"github.com/Wyydra/pairchat/internal/config"
	"github.com/Wyydra/pairchat/internal/core/service"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}
	l := config.SetupLogger(cfg)

	clk := clock.New()

	users := repo.NewUserRepository()
	chats := repo.NewChatRepository()
	messages := repo.NewMessageRepository()
	calls := repo.NewCallRepository()

	storage, err := filesystem.New(cfg.MediaDir, cfg.MediaURL())
	if err != nil {
		l.Fatal().Err(err).Str("dir", cfg.MediaDir).Msg("Failed to open media storage")
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, clk)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create token issuer")
	}

	hub := ws.NewHub()

	authService := service.NewAuthService(users, auth.NewBcryptHasher(cfg.BcryptCost), tokens, clk)
	chatService := service.NewChatService(users, chats, messages, storage, hub, clk)
	callService := service.NewCallService(users, chats, calls, pion.NewSDPValidator(), hub,
		service.WithClock(clk),
		service.WithRingTimeout(cfg.RingTimeout),
	)
	h := handler.NewHandler(authService, chatService, callService, hub, cfg)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		l.Info().
			Str("addr", cfg.ListenAddr).
			Str("mode", string(cfg.Mode)).
			Str("media_dir", cfg.MediaDir).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		l.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			l.Error().Err(err).Msg("Server forced to shutdown")
		}
		callService.Close()
		hub.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	l.Info().Msg("Server exited")
}

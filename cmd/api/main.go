package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/zhouzirui/realtime-relay/backend/internal/config"
	"github.com/zhouzirui/realtime-relay/backend/internal/handler"
	"github.com/zhouzirui/realtime-relay/backend/internal/logger"
	"github.com/zhouzirui/realtime-relay/backend/internal/service/conversation"
	"github.com/zhouzirui/realtime-relay/backend/internal/service/realtime"
	"github.com/zhouzirui/realtime-relay/backend/internal/service/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	zlog.Logger = log

	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
	}

	store := conversation.NewService()
	janitor := conversation.NewJanitor(store, cfg.Store.ConversationTTL, cfg.Store.SweepInterval, log)
	janitor.Start(ctx)
	defer janitor.Stop()

	deps := handler.Deps{
		Conversations:  store,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         log,
	}

	var negotiator *realtime.Negotiator
	if cfg.Provider.Enabled() {
		negotiator = newNegotiator(cfg, store, log)
		negotiator.StartReaper(ctx, cfg.Realtime.IdleTimeout, cfg.Realtime.ReapInterval)
		deps.Relay = negotiator
		log.Info().
			Str("provider", cfg.Provider.BaseURL).
			Str("default_model", cfg.Realtime.DefaultModel).
			Msg("realtime relay enabled")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, realtime relay routes will answer 503")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router, log)

	if negotiator != nil {
		negotiator.Shutdown()
	}
	log.Info().Msg("relay stopped")
}

func newNegotiator(cfg *config.Config, store *conversation.Service, log zerolog.Logger) *realtime.Negotiator {
	provider := realtime.NewProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout, log)
	peers := realtime.NewPionFactory(cfg.Realtime.ICEServers)
	settings := realtime.Settings{
		DefaultModel: cfg.Realtime.DefaultModel,
		DefaultVoice: cfg.Realtime.DefaultVoice,
		DataChannel:  cfg.Realtime.DataChannel,
	}

	onTerminal := func(info realtime.SessionInfo, cause error) {
		event := log.Info()
		if cause != nil {
			event = log.Warn().Err(cause)
		}
		event.
			Str("session_id", info.ID).
			Str("conversation_id", info.ConversationID).
			Str("state", string(info.State)).
			Dur("lifetime", time.Since(info.CreatedAt)).
			Msg("session ended")
	}

	return realtime.NewNegotiator(
		provider,
		peers,
		transcript.NewBuilder(),
		store,
		realtime.NewRegistry(),
		settings,
		log,
		realtime.WithTerminalHook(onTerminal),
	)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("realtime relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

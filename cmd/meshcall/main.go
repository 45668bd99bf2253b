package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/adapters/classapi"
	router "github.com/lectern/meshcall/internal/adapters/http"
	"github.com/lectern/meshcall/internal/adapters/rtc"
	signaladapter "github.com/lectern/meshcall/internal/adapters/signal"
	"github.com/lectern/meshcall/internal/app/orch"
	"github.com/lectern/meshcall/internal/config"
	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
	"github.com/lectern/meshcall/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	roomCode, err := domain.NewRoomCode(cfg.Room)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid room code")
	}
	identity, err := domain.NewIdentity(cfg.Name, domain.Role(cfg.Role))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid identity")
	}

	// Media comes first: without a device there is nothing to join with,
	// so the signaling server is never contacted.
	localMedia, err := media.Acquire(cfg.AudioOnly)
	if err != nil {
		if errors.Is(err, domain.ErrNoDeviceAccess) {
			log.Fatal().Msg("no camera or microphone access, cannot join")
		}
		log.Fatal().Err(err).Msg("media acquire failed")
	}

	sig, err := signaladapter.Dial(ctx, cfg.SignalURL, roomCode, identity)
	if err != nil {
		localMedia.Release()
		log.Fatal().Err(err).Msg("signaling connect failed")
	}

	webrtcCfg := rtc.ConfigFor(cfg.ICEServers)
	factory := func(peer domain.PeerID) (core.MediaConnection, error) {
		return rtc.NewWebRTCConnection(webrtcCfg, peer)
	}

	coord := orch.New(identity, roomCode, localMedia, sig, factory, cfg.Record, orch.Options{
		SettleDelay: cfg.SettleDelay,
		OfferGap:    cfg.OfferGap,
	})
	coord.Notify = func(n orch.Notice) {
		log.Info().Str("module", "notice").Str("level", n.Level).Int("countdown", n.Countdown).Msg(n.Message)
	}

	api := classapi.New(cfg.APIBaseURL)
	coord.API = api
	if identity.Role == domain.RoleModerator {
		api.StartClass(ctx, roomCode)
	}

	r := router.SetupRouter(cfg, coord)
	srv := &http.Server{Addr: cfg.ControlAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Msg("control server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server error")
		}
	}()

	log.Info().Str("room", string(roomCode)).Str("name", identity.Name).Msg("session starting")
	coord.Run(ctx)

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control server forced to shutdown")
	}
	coord.Leave()
	log.Info().Msg("Session exited gracefully")
}

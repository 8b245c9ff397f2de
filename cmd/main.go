package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/audio"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/capture"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/config"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/decoder"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/device"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/handler"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/hub"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/preview"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/scanner"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/service"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/torch"
	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
	"github.com/weiawesome/wes-io-live/ticket-scanner/pkg/pubsub"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "ticket-scanner",
		StationID:   cfg.Station.ID,
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting ticket-scanner")

	// State store
	var store service.StateStore
	switch cfg.State.Type {
	case "redis":
		redisCfg := cfg.State.Redis
		if redisCfg.Address == "" {
			redisCfg.Address = cfg.PubSub.Redis.Address
			redisCfg.Password = cfg.PubSub.Redis.Password
		}
		redisStore, err := service.NewRedisStateStore(redisCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis state store")
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info().Str("address", redisCfg.Address).Msg("using redis state store")
	default:
		store = service.NewMemoryStateStore()
		logger.Info().Msg("using memory state store")
	}

	// Scan relay, best-effort
	pub, err := pubsub.NewPublisher(cfg.PubSub)
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create publisher, scan relay disabled")
		pub = nil
	}
	relay := service.NewRelay(pub, cfg.Station.ID, 3*time.Second)
	defer relay.Close()

	// Audio cue
	var cue audio.Cue = audio.Nop{}
	if cfg.Audio.Enabled {
		cue = audio.NewCommandCue(cfg.Audio.Player, cfg.Audio.Args, cfg.Audio.CuePath)
	}

	// Camera pipeline
	pv := preview.NewBroadcaster()
	led := torch.NewLED(cfg.Torch.LEDsRoot, cfg.Torch.LED)
	if led.Supported() {
		logger.Info().Str("led", led.Name()).Msg("torch available")
	}

	scanners := scanner.NewFactory(scanner.Options{
		Capture: capture.Options{
			FFmpegPath:   cfg.Capture.FFmpegPath,
			InputFormat:  cfg.Capture.InputFormat,
			Width:        cfg.Capture.Width,
			Height:       cfg.Capture.Height,
			FPS:          cfg.Scanner.FPS,
			AspectRatio:  cfg.Scanner.AspectRatio,
			JPEGQuality:  cfg.Capture.JPEGQuality,
			StartTimeout: cfg.Capture.StartTimeout,
		},
		Decoder: decoder.NewQRDecoder(decoder.Options{
			BoxWidth:  cfg.Scanner.QRBoxWidth,
			BoxHeight: cfg.Scanner.QRBoxHeight,
			MaxEdge:   cfg.Scanner.MaxEdge,
			TryHarder: cfg.Scanner.TryHarder,
		}),
		Torch:   led,
		OnFrame: pv.Publish,
	})

	wsHub := hub.NewHub(cfg.WebSocket)

	controller := service.NewScanController(service.ControllerDeps{
		StationID:   cfg.Station.ID,
		Enumerator:  device.NewSysfsEnumerator(cfg.Device.SysfsRoot, cfg.Device.DevRoot),
		Scanners:    scanners,
		Cue:         cue,
		Store:       store,
		Relay:       relay,
		Observer:    service.Observers{wsHub, pv},
		StopTimeout: cfg.Capture.StopTimeout,
	})

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger, "/ws", "/scan/preview", "/health"))

	handler.NewHandler(controller, pv, handler.PageConfig{
		DashboardURL: cfg.Dashboard.URL,
		CuePath:      cfg.Audio.CuePath,
		QRBoxWidth:   cfg.Scanner.QRBoxWidth,
	}).RegisterRoutes(router)
	handler.NewWSHandler(wsHub, controller).RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: the preview stream is long-lived.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsHub.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("ticket-scanner listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// A station without a working camera still serves its page.
		if err := controller.Start(gCtx); err != nil {
			logger.Warn().Err(err).Msg("initial decode session not started")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down ticket-scanner")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if res := controller.Close(shutdownCtx); !res.Applied {
			logger.Warn().Err(res.Err).Str("reason", res.Reason).Msg("decode session teardown incomplete")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("ticket-scanner exited with error")
	}

	logger.Info().Msg("ticket-scanner stopped")
}

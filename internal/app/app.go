package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	server "little-sb/server"
	gamenet "little-sb/server/internal/net"
	"little-sb/server/internal/sim"
	"little-sb/server/internal/telemetry"
)

// Run wires the hub, the tick loop, and the HTTP listener together and blocks
// until ctx is cancelled or the listener fails.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logger, flush := newLogger(cfg)
	defer flush()
	tlog := telemetry.WrapZap(logger)

	metrics := &telemetry.Metrics{}
	hub := server.NewHub(server.HubConfig{
		Logger:  tlog,
		Metrics: metrics,
		Seed:    cfg.Seed,
	})

	loop := sim.NewLoop(hub, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CatchupMaxTicks: cfg.CatchupMaxTicks,
	}, sim.SystemClock{})
	loop.AfterStep = func(_ sim.TickContext, took time.Duration) {
		metrics.AddTick(took.Nanoseconds())
	}

	stopLoop := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(stopLoop)
	}()

	srv := &nethttp.Server{
		Addr:    cfg.Addr,
		Handler: gamenet.NewHTTPHandler(hub, gamenet.HTTPHandlerConfig{Logger: tlog}),
	}
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe()
	}()
	logger.Infof("listening on %s (tick rate %d)", cfg.Addr, cfg.TickRate)

	select {
	case <-ctx.Done():
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Infof("listener shutdown: %v", err)
		}
		close(stopLoop)
		<-loopDone
		hub.Shutdown()
		return nil
	case err := <-srvErr:
		close(stopLoop)
		<-loopDone
		hub.Shutdown()
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
}

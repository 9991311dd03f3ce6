// Command daqd is the DAQ runtime daemon (spec.md §2): it wires the device
// registry, ring buffer, archive flusher, and RPC surface into one process,
// then serves HTTP until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jangala-dev/daqd/internal/archive"
	"github.com/jangala-dev/daqd/internal/daemonconfig"
	"github.com/jangala-dev/daqd/internal/metrics"
	"github.com/jangala-dev/daqd/internal/registry"
	"github.com/jangala-dev/daqd/internal/ring"
	"github.com/jangala-dev/daqd/internal/rpc"
)

func main() {
	configPath := flag.String("config", "", "path to a daqd TOML configuration file")
	verbose := flag.Bool("v", false, "debug-level logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := daemonconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("daqd: load config")
	}

	reg := registry.New()

	ringBuf, err := ring.Create(cfg.RingPath, cfg.RingCapacity)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RingPath).Msg("daqd: create ring buffer")
	}
	defer ringBuf.Close()

	flusher, err := archive.Open(cfg.ArchivePath, ringBuf, cfg.ArchiveTick)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ArchivePath).Msg("daqd: open archive")
	}
	defer flusher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := flusher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("daqd: archive flusher stopped")
		}
	}()

	go observeRing(ctx, ringBuf, m)

	srv := rpc.NewServer(reg, ringBuf, flusher)
	if err := srv.StartHealthSweep(ctx, cfg.HealthSweep); err != nil {
		log.Fatal().Err(err).Msg("daqd: start health sweep")
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("daqd: listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("daqd: http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("daqd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("daqd: http shutdown")
	}
}

// observeRing keeps the ring buffer gauges current until ctx is done, so
// /metrics reflects write/read cursor position without the flusher or
// RunEngine having to know about prometheus directly.
func observeRing(ctx context.Context, r *ring.Buffer, m *metrics.Metrics) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.ObserveRing(r.WriteHead(), r.ReadTail())
		}
	}
}

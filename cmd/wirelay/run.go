package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	werrors "github.com/wirelay/wirelay/internal/errors"
	"github.com/wirelay/wirelay/pkg/metrics"
	"github.com/wirelay/wirelay/pkg/noise"
	"github.com/wirelay/wirelay/pkg/tunnel"
	"github.com/wirelay/wirelay/pkg/wgcfg"
)

func runCommand() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "wirelay.conf", "Path to the tunnel configuration")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error, silent")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	tracing := fs.String("tracing", "none", "Tracing mode: none, simple, otel (requires -tags otel)")

	fs.Usage = func() {
		fmt.Println(`USAGE: wirelay run [options]

Run the tunnel described by a configuration file until interrupted.

OPTIONS:`)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	logger := metrics.NewLogger(
		metrics.WithLevel(metrics.ParseLevel(*logLevel)),
		metrics.WithFormat(metrics.ParseFormat(*logFormat)),
		metrics.WithName("wirelay"),
	)

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fatal("reading %s: %v", *configPath, err)
	}
	cfg, err := wgcfg.Parse(string(data))
	if err != nil {
		fatal("parsing %s: %v", *configPath, err)
	}
	dir, err := tunnel.NewPeerDirectory(cfg)
	if err != nil {
		fatal("resolving peers: %v", err)
	}

	var tracer metrics.Tracer = metrics.NoOpTracer{}
	switch *tracing {
	case "none":
	case "simple":
		tracer = metrics.NewSimpleTracer()
	case "otel":
		if !metrics.OTelEnabled() {
			logger.Warn("built without OpenTelemetry support, tracing disabled (rebuild with -tags otel)")
		}
		tracer = metrics.NewOTelTracer("wirelay")
	default:
		fatal("unknown tracing mode %q", *tracing)
	}

	collector := metrics.NewCollector()
	observer := tunnel.NewMetricsObserver(collector, logger, tracer)

	localKey := cfg.PrivateKey
	pipeline, err := tunnel.NewPipeline(tunnel.PipelineConfig{
		ListenPort: cfg.ListenPort,
		Peers:      dir,
		Observer:   observer,
		Logger:     logger,
		Sink: tunnel.SinkFunc(func(packet []byte, ipVersion int) {
			logger.Debug("packet received", metrics.Fields{
				"ip_version": ipVersion,
				"bytes":      len(packet),
			})
		}),
		Engines: func(peer *tunnel.Peer) (tunnel.Engine, error) {
			if peer == nil {
				return nil, werrors.ErrNoPeers
			}
			return noise.NewEngine(noise.Config{
				LocalStaticPrivate: localKey,
				RemoteStatic:       peer.PublicKey,
				Keepalive:          peer.Keepalive,
			})
		},
	})
	if err != nil {
		fatal("building pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", metrics.Fields{
		"version": getVersion(),
		"config":  *configPath,
		"address": cfg.Address,
		"port":    cfg.ListenPort,
		"peers":   dir.Len(),
	})
	if err := pipeline.Run(ctx); err != nil {
		fatal("pipeline: %v", err)
	}
	logger.Info("shut down", collector.Snapshot().Fields())
}

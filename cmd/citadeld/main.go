// Command citadeld runs the wallet-core daemon: it loads configuration,
// opens the Storage and Cache drivers, dials the chain indexer and the
// colored-asset daemon, and serves the ZMQ REP request/reply surface
// described by spec.md §6 until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/btcsuite/btclog"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	citadel "github.com/mycitadel/citadel-runtime"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/build"
	"github.com/mycitadel/citadel-runtime/cache"
	"github.com/mycitadel/citadel-runtime/config"
	"github.com/mycitadel/citadel-runtime/electrum"
	"github.com/mycitadel/citadel-runtime/metrics"
	"github.com/mycitadel/citadel-runtime/rpc"
	"github.com/mycitadel/citadel-runtime/runtime"
	"github.com/mycitadel/citadel-runtime/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsAddr is the fixed loopback address citadeld exposes its
// Prometheus registry on; it is not presently part of config.Config since
// spec.md §1 excludes observability-surface configuration from the core.
const metricsAddr = "127.0.0.1:9325"

// progressAddr is the fixed loopback address citadeld exposes its
// sync-progress websocket feed on, for the same reason metricsAddr is
// fixed rather than configurable.
const progressAddr = "127.0.0.1:9326"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "citadeld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logWriter := build.NewRotatingLogWriter()
	if err := logWriter.InitLogRotator(
		cfg.LogDir+"/citadeld.log", cfg.MaxLogSizeMB, cfg.MaxLogRotations,
	); err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	defer logWriter.Close()
	citadel.SetupLoggers(logWriter)
	if level, ok := btclog.LevelFromString(cfg.DebugLevel); ok {
		logWriter.SetLogLevels(level)
	}

	store, err := storage.Open("bdb", cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	cacheDriver, err := cache.NewLRUDriver()
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	indexer, err := electrum.Dial(cfg.IndexerAddr)
	if err != nil {
		return fmt.Errorf("dial indexer %s: %w", cfg.IndexerAddr, err)
	}
	defer indexer.Close()

	assetClient, err := assetclient.Dial(cfg.AssetDaemonAddr)
	if err != nil {
		return fmt.Errorf("dial asset daemon %s: %w", cfg.AssetDaemonAddr, err)
	}
	defer assetClient.Close()

	rt, err := runtime.New(runtime.Config{
		Storage:     store,
		Cache:       cacheDriver,
		Indexer:     indexer,
		AssetClient: assetClient,
		ChainTag:    cfg.ChainTag,
	})
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}

	progress := rpc.NewProgressFeed()
	dispatcher := rpc.NewDispatcher(rt, store, cacheDriver, assetClient, cfg.ChainTag, progress)

	server, err := rpc.NewServer(cfg.RPCListen, dispatcher, cfg.MacaroonPath)
	if err != nil {
		return fmt.Errorf("init rpc server: %w", err)
	}

	reg := metrics.Registry()
	reg.MustRegister(grpc_prometheus.DefaultClientMetrics)
	go serveMetrics(reg)
	go serveProgress(progress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		server.Stop()
		cancel()
	}()

	return server.Serve(ctx)
}

// serveMetrics exposes reg's collectors over HTTP on metricsAddr; a scrape
// failure here is not fatal to the daemon's RPC surface.
func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "citadeld: metrics server: %v\n", err)
	}
}

// serveProgress exposes feed's websocket upgrade endpoint over HTTP on
// progressAddr so local UIs can watch SyncContract calls land in real
// time; a failure here is not fatal to the daemon's RPC surface.
func serveProgress(feed *rpc.ProgressFeed) {
	mux := http.NewServeMux()
	mux.Handle("/sync-progress", feed)
	if err := http.ListenAndServe(progressAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "citadeld: progress server: %v\n", err)
	}
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eleven-am/peermesh"
)

func main() {
	var (
		configPath = flag.String("config", getEnv("PEERMESH_CONFIG", ""), "path to a YAML config file")
		target     = flag.String("join", getEnv("PEERMESH_JOIN", ""), "bootstrap peer id; empty starts a new mesh")
		peerID     = flag.String("id", getEnv("PEERMESH_PEER_ID", ""), "preferred peer id; without discovery it must be a dialable host:port")
		name       = flag.String("name", getEnv("PEERMESH_NAME", ""), "profile name announced to peers")
		listen     = flag.String("listen", getEnv("PEERMESH_LISTEN", ""), "gRPC listen address")
		advertise  = flag.String("advertise", getEnv("PEERMESH_ADVERTISE", ""), "address other peers dial")
		dataDir    = flag.String("data-dir", getEnv("PEERMESH_DATA_DIR", ""), "directory for session state")
		metrics    = flag.String("metrics", getEnv("PEERMESH_METRICS", ""), "serve /metrics and /health on this address")
		mdns       = flag.Bool("mdns", false, "resolve and advertise peers over mDNS")
		logLevel   = flag.String("log-level", getEnv("PEERMESH_LOG_LEVEL", "info"), "debug, info, warn or error")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))

	config := peermesh.DefaultConfig()
	if *configPath != "" {
		loaded, err := peermesh.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		config = loaded
	}

	if *peerID != "" {
		config.WithPeerID(*peerID)
	}
	if *name != "" {
		config.WithProfile(*name)
	}
	if *listen != "" || *advertise != "" {
		listenAddr := *listen
		if listenAddr == "" {
			listenAddr = config.Transport.ListenAddr
		}
		config.WithGRPC(listenAddr, *advertise)
	}
	if *dataDir != "" {
		config.DataDir = *dataDir
	}
	if *metrics != "" {
		config.Metrics.Enabled = true
		config.Metrics.Addr = *metrics
	}
	if *mdns {
		config.WithMDNS("", "")
	}
	config.WithLogger(logger)

	node, err := peermesh.New(config)
	if err != nil {
		logger.Error("failed to create node", "error", err)
		os.Exit(1)
	}

	cancelSub := node.SubscribeFunc(func(view peermesh.MeshView) {
		logger.Info("mesh changed",
			"self", view.SelfID,
			"peers", len(view.Connections),
			"connected", view.ConnectedCount())
	})
	defer cancelSub()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	joinCtx, joinCancel := context.WithTimeout(ctx, 30*time.Second)
	view, err := node.JoinConfigured(joinCtx, *target)
	joinCancel()
	if err != nil {
		logger.Error("failed to join mesh", "target", *target, "error", err)
		_ = node.Close()
		os.Exit(1)
	}

	logger.Info("joined mesh", "peer_id", view.SelfID, "target", *target)

	<-ctx.Done()

	logger.Info("leaving mesh", "peer_id", view.SelfID)
	if err := node.RequestTeardown(true); err != nil {
		logger.Warn("teardown request failed", "error", err)
	}
	if err := node.Close(); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("node stopped")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

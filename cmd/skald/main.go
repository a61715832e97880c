// Command skald serves the document service: HTTP API, asset serving,
// exports, and optional MCP over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skaldworks/skald/blobstore"
	"github.com/skaldworks/skald/bundle"
	"github.com/skaldworks/skald/dbopen"
	"github.com/skaldworks/skald/docstore"
	"github.com/skaldworks/skald/server"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfigFile(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	// Env overrides for container deployments.
	cfg.Addr = env("SKALD_ADDR", cfg.Addr)
	cfg.DBPath = env("SKALD_DB", cfg.DBPath)
	cfg.OwnerID = env("SKALD_OWNER", cfg.OwnerID)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(docstore.SchemaSQL),
		dbopen.WithSchema(blobstore.SchemaSQL),
	)
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	docs := docstore.NewSQLite(db)
	blobs := blobstore.NewSQLite(db, blobstore.WithBaseURL("/assets"))

	snapshotter := bundle.NewSnapshotter(bundle.SnapshotterConfig{
		Store:     docs,
		Snapshots: docs,
		OwnerID:   cfg.OwnerID,
		Interval:  cfg.Snapshot.Interval,
		Keep:      cfg.Snapshot.Keep,
		Logger:    logger,
	})
	snapshotter.Start(ctx)
	defer snapshotter.Stop()

	svc := server.New(cfg, docs, blobs, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		svc.Close(shutdownCtx)
	}()

	// Optional MCP transport over stdio, alongside HTTP.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpServer := mcp.NewServer(&mcp.Implementation{Name: "skald", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpServer)
		go func() {
			if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
				slog.Error("mcp transport", "error", err)
			}
		}()
		slog.Info("mcp stdio transport started")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}()

	slog.Info("skald listening", "addr", cfg.Addr, "db", cfg.DBPath, "owner", cfg.OwnerID)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server", "error", err)
		os.Exit(1)
	}
}

// Command firehose connects the full shard set and logs every dispatch
// event until interrupted. It exercises the whole stack: config, REST
// discovery, sharded gateway sessions, cache, and metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/pylon/internal/client"
	"github.com/rickgao/pylon/internal/config"
	"github.com/rickgao/pylon/internal/event"
	"github.com/rickgao/pylon/internal/metrics"
	"github.com/rickgao/pylon/internal/model"
	"github.com/rickgao/pylon/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/firehose.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting firehose",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"rest_url", cfg.Rest.URL,
		"shard_count", cfg.Gateway.ShardCount,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Start metrics server
	go func() {
		if err := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path, logger); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// Wire the client
	c, err := client.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	c.OnAll(func(ev event.Event) {
		kind := string(ev.Kind)
		if kind == "" {
			kind = "UNKNOWN"
		}
		logger.Info("event",
			"kind", kind,
			"shard_id", ev.ShardID,
			"seq", ev.Sequence,
		)
	})

	c.On(event.KindMessageCreate, func(ev event.Event) {
		msg, ok := ev.Data.(*model.Message)
		if !ok {
			return
		}
		logger.Info("message",
			"channel_id", msg.ChannelID,
			"author_id", msg.Author.ID,
			"content_len", len(msg.Content),
		)
	})

	c.OnVoiceServerUpdate(func(vs model.VoiceServer) {
		logger.Info("voice server handoff",
			"guild_id", vs.GuildID,
			"endpoint", vs.Endpoint,
		)
	})

	// Surface handler panics
	go func() {
		for err := range c.HandlerErrors() {
			logger.Error("event handler failed", "error", err)
		}
	}()

	// Open the shards
	if err := c.Open(ctx); err != nil {
		logger.Error("failed to open gateway", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway online, streaming events")

	// Block until a fatal error or shutdown signal
	errCh := make(chan error, 1)
	go func() { errCh <- c.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("gateway terminated", "error", err)
			c.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	c.Close()
	logger.Info("shutdown complete")
}

// Command relay records a chat widget session and ships its transcript to the chat log
// server. Widget hook events are read as JSON lines from stdin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolio-chat/internal/capture"
	"portfolio-chat/internal/config"
	"portfolio-chat/internal/identity"
	"portfolio-chat/internal/infra/logger"
	"portfolio-chat/internal/infra/sink"
)

func main() {
	config.LoadEnv()

	cfg, err := config.LoadRelay()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewLogger(ctx, cfg.LogLevel, true)

	store, err := identity.OpenBoltStore(cfg.StatePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer store.Close()

	var renderer capture.Renderer
	if cfg.RenderFile != "" {
		renderer = capture.FileRenderer{Path: cfg.RenderFile}
	}

	chatSink := sink.NewHTTPSink(cfg.ChatLogURL, cfg.SinkMode == config.SinkModeDelta, cfg.SinkTimeout)
	r := newRelay(cfg, store, chatSink, renderer, log)

	if err := r.Run(ctx, os.Stdin); err != nil {
		log.Error(fmt.Sprintf("Relay stopped: %v", err))
		os.Exit(1)
	}
	log.Info("Relay stopped.")
}

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"parrot/internal/channel"
	"parrot/internal/realtime"
	"parrot/internal/session"
	"parrot/internal/watcher"
)

// Config holds server configuration, loaded from environment variables
// once at startup.
type Config struct {
	Port       int
	Debug      bool
	OneShot    bool
	ControlDir string
}

func loadConfig() Config {
	cfg := Config{
		Port:    8420,
		OneShot: true,
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("PARROT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("PARROT_ONE_SHOT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OneShot = b
		}
	}
	if v := os.Getenv("PARROT_CONTROL_DIR"); v != "" {
		cfg.ControlDir = v
	}

	return cfg
}

func main() {
	cfg := loadConfig()

	ch, err := channel.New(channel.Config{
		RingSize:    channel.DefaultRingSize,
		MaxMessages: channel.DefaultMaxMessages,
		Debug:       cfg.Debug,
	})
	if err != nil {
		log.Fatalf("failed to create channel: %v", err)
	}
	sess := session.New(ch, session.Options{OneShot: cfg.OneShot, Debug: cfg.Debug})

	// The control directory is optional; failing to set it up is not fatal.
	var ctl *watcher.Watcher
	if cfg.ControlDir != "" {
		ctl = watcher.New(cfg.ControlDir, ch, cfg.Debug)
		if err := ctl.Start(); err != nil {
			log.Printf("failed to start control directory %s - continuing without: %v", cfg.ControlDir, err)
			ctl = nil
		}
	}

	rtServer := realtime.New(ch, sess, cfg.Debug)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if ctl != nil {
			ctl.Shutdown()
		}
		rtServer.Shutdown()
		httpServer.Close()
	}()

	log.Printf("parrot running on http://localhost:%d (one_shot=%t, debug=%t)", cfg.Port, cfg.OneShot, cfg.Debug)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

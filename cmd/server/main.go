package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, binds the listeners and serves until SIGINT or
// SIGTERM, then shuts both servers down.
func run() error {
	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to a YAML configuration file")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(*cfg, log)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	var gateway *http.Server
	if cfg.WebSocketAddr != "" {
		gateway = server.CreateServer(cfg.WebSocketAddr, srv.SetupRoutes())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("chat listener: %w", err)
		}
		return nil
	})

	if gateway != nil {
		g.Go(func() error {
			log.Info("WebSocket gateway listening", "addr", cfg.WebSocketAddr)
			if err := gateway.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket gateway: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		var errs []error
		if gateway != nil {
			errs = append(errs, server.ShutdownServer(gateway, cfg.ShutdownTimeout, log))
		}
		errs = append(errs, srv.Shutdown(cfg.ShutdownTimeout))
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

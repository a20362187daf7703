package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nucleo-dev/nucleo/pkg/inspect"
	"github.com/nucleo-dev/nucleo/pkg/middleware"
	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

func serveCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live demo store with metrics and the inspect API",
		Long: `Serve starts an HTTP server around a demo store whose atoms are
updated continuously. Endpoints:

  /metrics        Prometheus metrics
  /debug/atoms    JSON snapshot of every atom
  /debug/stats    store and inspector stats
  /debug/events   websocket stream of engine events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(addr, interval)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:7878", "Listen address")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "Demo update interval")

	return cmd
}

func serve(addr string, interval time.Duration) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	insp := inspect.New(inspect.WithLogger(logger))
	defer insp.Close()

	store := nucleo.NewStore(
		nucleo.WithLogger(logger),
		nucleo.WithObserver(insp),
		middleware.Prometheus(),
	)
	insp.Attach(store)

	tick := nucleo.NewPrimitive(0, nucleo.WithLabel("tick"))
	parity := nucleo.NewDerived(func(g *nucleo.Getter) (string, error) {
		v, err := tick.Get(g)
		if err != nil {
			return "", err
		}
		if v%2 == 0 {
			return "even", nil
		}
		return "odd", nil
	}, nucleo.WithLabel("parity"))
	square := nucleo.NewDerived(func(g *nucleo.Getter) (int, error) {
		v, err := tick.Get(g)
		return v * v, err
	}, nucleo.WithLabel("square"))

	unsubParity := store.Subscribe(parity, func() {})
	defer unsubParity()
	unsubSquare := store.Subscribe(square, func() {})
	defer unsubSquare()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n++
				if err := tick.Set(store, n); err != nil {
					logger.Error("demo update failed", "error", err)
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug", insp.Handler())

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("nucleo-bench serving", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

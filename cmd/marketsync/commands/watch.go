package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"market-sync/internal/cache"
	"market-sync/internal/events"
	"market-sync/internal/ledger"
	"market-sync/internal/observability"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Load every item and follow ledger events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := startMetricsServer(cfg.MetricsAddr)
			defer shutdownMetricsServer(srv)

			wsConfig := ledger.DefaultWSConfig()
			wsConfig.Logger = logger
			feed, err := ledger.NewWSClient(ctx, cfg.Ledger.WSURL, &wsConfig)
			if err != nil {
				return err
			}
			defer feed.Close()

			events.RegisterJournal(a.dispatcher, a.journal, nil)

			view := a.newCache()
			defer view.Close()
			view.Observe(func(ch cache.Change) {
				logChange(ch)
			})

			// The journal sees every event from here on; the view
			// subscribes itself once its initial load completes.
			done := make(chan error, 1)
			go func() {
				done <- a.dispatcher.Run(ctx, feed)
			}()

			if err := view.Load(ctx); err != nil {
				return err
			}
			logger.Printf("Loaded %d items, watching for events", view.Len())

			err = <-done
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Println("Shutdown complete")
			return nil
		},
	}
}

func logChange(ch cache.Change) {
	if ch.Kind == cache.ChangeCleared {
		logger.Printf("%s", ch.Kind)
		return
	}
	e := ch.Entry
	title := "(pending)"
	if e.Content != nil {
		title = e.Content.Field("title")
	}
	logger.Printf("%s #%d item=%d state=%s offer=%s transient=%t title=%q",
		ch.Kind, ch.Index, e.Item.ID, e.Item.State, e.Item.CurrentOfferValue, e.Transient, title)
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
// A second signal forces an immediate exit.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// startMetricsServer serves /health and /metrics. An empty addr disables it.
func startMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Printf("Metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Metrics server error: %v", err)
		}
	}()
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

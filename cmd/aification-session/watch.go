package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aification/sessionkit"
	promexport "github.com/aification/sessionkit/metrics/export/prometheus"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		events      bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session as other processes sign in and out",
		Long: "watch hydrates once, then re-hydrates whenever another process changes the stored token " +
			"or the process receives SIGCONT. It prints every settled session change until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, a, cmd, metricsAddr, events)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().BoolVar(&events, "events", false, "Write session events to stderr as JSON lines")
	return cmd
}

func runWatch(ctx context.Context, a *app, cmd *cobra.Command, metricsAddr string, events bool) error {
	out := cmd.OutOrStdout()
	visibility := sessionkit.NewManualVisibility()

	opts := openOptions{metrics: metricsAddr != "", visibility: visibility}
	if events {
		opts.events = sessionkit.NewJSONWriterSink(cmd.ErrOrStderr())
	}
	done, err := a.open(out, opts)
	if err != nil {
		return err
	}
	defer done()

	var (
		mu   sync.Mutex
		last *sessionkit.Snapshot
	)
	unsubscribe := a.store.Subscribe(func(snap sessionkit.Snapshot) {
		if snap.Status != sessionkit.StatusReady {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if last != nil && last.Seq > snap.Seq {
			return
		}
		if last != nil && sameUser(last.User, snap.User) {
			last = &snap
			return
		}
		last = &snap
		printUser(out, snap)
	})
	defer unsubscribe()

	a.store.Hydrate(ctx)
	if err := a.store.SubscribeToExternalChanges(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cont := make(chan os.Signal, 1)
		signal.Notify(cont, syscall.SIGCONT)
		defer signal.Stop(cont)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-cont:
				visibility.Set(sessionkit.VisibilityHidden)
				visibility.Set(sessionkit.VisibilityVisible)
			}
		}
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promexport.NewPrometheusExporter(a.store).Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func sameUser(a, b *sessionkit.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

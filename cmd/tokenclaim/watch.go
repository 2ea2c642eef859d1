package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenclaim/internal/history"
	"tokenclaim/internal/model"
	"tokenclaim/internal/viewmodel"
)

type watchEvent struct {
	Kind    string               `json:"kind"`
	Session *model.Session       `json:"session,omitempty"`
	Stats   *history.StatsUpdate `json:"stats,omitempty"`
	View    *viewmodel.ViewModel `json:"view,omitempty"`
	Action  string               `json:"action,omitempty"`
	Status  string               `json:"status,omitempty"`
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session, pool and history changes until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("pool", "", "pool to load and reload on every tick")
	cmd.Flags().Duration("interval", 15*time.Second, "reload interval for the pool and history stats")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger
	a := rt.app

	if rt.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", rt.cfg.MetricsAddr))
	}

	sessions := make(chan model.Session, 16)
	sessionSub := a.Session().SubscribeChanges(sessions)
	defer sessionSub.Unsubscribe()

	stats := make(chan history.StatsUpdate, 64)
	statsSub := a.History().SubscribeStats(stats)
	defer statsSub.Unsubscribe()

	actions := make(chan viewmodel.ActionUpdate, 32)
	for _, action := range a.Actions() {
		sub := action.Subscribe(actions)
		defer sub.Unsubscribe()
	}

	if _, err := a.Connect(ctx); err != nil {
		logger.Warn("wallet connect failed, watching read-only", zap.Error(err))
	}

	pool, _ := cmd.Flags().GetString("pool")
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = 15 * time.Second
	}
	out := cmd.OutOrStdout()

	views := make(chan viewmodel.ViewModel, 1)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			var ev watchEvent
			select {
			case <-groupCtx.Done():
				return nil
			case vm := <-views:
				ev = watchEvent{Kind: "view", View: &vm}
			case s := <-sessions:
				ev = watchEvent{Kind: "session", Session: &s}
			case u := <-stats:
				if u.Stats.Loading {
					continue
				}
				ev = watchEvent{Kind: "stats", Stats: &u}
			case u := <-actions:
				ev = watchEvent{Kind: "action", Action: u.Action, Status: u.Status.String()}
			case err := <-sessionSub.Err():
				return err
			}
			if err := printJSON(out, ev); err != nil {
				return err
			}
		}
	})
	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if pool != "" {
				vm, err := a.Load(groupCtx, pool)
				switch {
				case err == nil:
					select {
					case views <- vm:
					case <-groupCtx.Done():
					}
				case groupCtx.Err() == nil:
					logger.Warn("reload pool failed", zap.String("pool", pool), zap.Error(err))
				}
			}
			if _, err := a.Refresh(groupCtx, ""); err != nil && groupCtx.Err() == nil {
				logger.Warn("refresh history failed", zap.Error(err))
			}
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err = group.Wait()
	logger.Info("watch stopped", zap.Error(err))
	return err
}

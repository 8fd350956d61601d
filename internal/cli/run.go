package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mdmestre/enroller/internal/config"
	"github.com/mdmestre/enroller/internal/engine"
	"github.com/mdmestre/enroller/internal/gateway"
	"github.com/mdmestre/enroller/internal/metrics"
	"github.com/mdmestre/enroller/internal/session"
	"github.com/mdmestre/enroller/pkg/api"
)

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run enrollment cycles until every contact is processed",
		Long: `Connect to the messaging gateway and run enrollment cycles.

Each cycle adds up to ENROLL_ADD_QUOTA contacts to the group directly, then
sends the invite link to up to ENROLL_LINK_QUOTA of the remaining ones.
Progress is saved after every action, so the command can be stopped and
restarted at any time without repeating work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.GatewayURL == "" {
				return fmt.Errorf("%sGATEWAY_URL is required", config.Prefix)
			}
			ec, err := cfg.Engine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := gateway.New(cfg.GatewayURL,
				gateway.WithToken(cfg.GatewayToken),
				gateway.WithHeartbeat(cfg.GatewayHeartbeat),
			)
			if err != nil {
				return err
			}
			return runCampaign(ctx, cfg, ec, client, cfg.Logger())
		},
	}
}

// runCampaign drives the orchestrator over sessions opened by dialer, and
// serves metrics alongside when configured.
func runCampaign(ctx context.Context, cfg config.Config, ec engine.Config, dialer session.Dialer, logger *slog.Logger) error {
	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLedger(); err != nil {
			logger.Warn("ledger_close_failed", slog.Any("error", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promObs, err := metrics.NewObserver(reg)
	if err != nil {
		return err
	}
	basic := &api.BasicMetrics{}
	obs := api.NewCompositeObserver(api.NewLoggingObserver(logger), basic, promObs)
	source := newSource(cfg, logger)

	ctrl := session.NewController(dialer,
		session.WithStartDelay(cfg.StartDelay),
		session.WithReconnectDelay(cfg.ReconnectDelay),
		session.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return ctrl.Run(gctx, func(ctx context.Context, s session.Session) error {
			orch, err := engine.New(ec, source, ledger, s.Services(), engine.WithObserver(obs))
			if err != nil {
				return err
			}
			return orch.Run(ctx)
		})
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, reg, logger)
		})
	}

	err = g.Wait()
	snap := basic.Snapshot()
	logger.Info("campaign_stopped",
		slog.Int64("cycles", snap.CyclesCompleted),
		slog.Int64("added", snap.Added),
		slog.Int64("linked", snap.Linked),
		slog.Int64("add_failed", snap.AddFailed),
		slog.Int64("link_failed", snap.LinkFailed),
		slog.Int64("remaining", snap.Remaining),
	)

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Interrupted by signal; progress is already saved.
		return nil
	}
	return err
}

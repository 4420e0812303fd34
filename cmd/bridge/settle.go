package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultBridge/internal/config"
	"vaultBridge/internal/model"
	"vaultBridge/internal/operator"
)

func newConfirmCmd() *cobra.Command {
	confirmCmd := &cobra.Command{
		Use:   "confirm <entry-id>",
		Short: "Confirm the next queued entry with the venue response",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfirm,
	}
	confirmCmd.Flags().StringSlice("amounts", nil, "venue-credited amounts per leg (default: as requested)")
	return confirmCmd
}

func newDrainCmd() *cobra.Command {
	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Confirm every pending entry in order",
		RunE:  runDrain,
	}
	drainCmd.Flags().String("responses", "", "JSONL venue responses keyed by entry id")
	drainCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while draining")
	drainCmd.Flags().Uint64("batch-size", 100, "entries per progress batch")
	return drainCmd
}

func runConfirm(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid entry id %q", args[0])
	}
	rawAmounts, _ := cmd.Flags().GetStringSlice("amounts")
	var resp model.SettlementResponse
	if len(rawAmounts) > 0 {
		resp.Amounts = make([]*big.Int, 0, len(rawAmounts))
		for _, raw := range rawAmounts {
			amount, err := config.ParseAmount("amounts", raw)
			if err != nil {
				return err
			}
			resp.Amounts = append(resp.Amounts, amount)
		}
	}

	outcome, err := a.bridge.Confirm(ctx, a.settlerCaller(), id, resp)
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

func runDrain(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDrain(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := openApp(ctx, cmd, cfg.Config, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, a.logger)
		defer shutdown()
	}

	book, err := operator.LoadResponses(cfg.Responses)
	if err != nil {
		return err
	}
	batchSize, _ := cmd.Flags().GetUint64("batch-size")
	runner := operator.NewRunner(operator.RunConfig{
		Operator:     a.settlerCaller(),
		BatchSize:    batchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, a.bridge, book, a.logger)

	cursor := a.bridge.Cursor()
	a.logger.Info("drain start",
		zap.Uint64("up_to", cursor.UpTo),
		zap.Uint64("count", cursor.Count),
		zap.Int("responses", book.Len()),
		zap.String("operator", a.settlerCaller().Hex()),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	processed, err := runner.Run(ctx)
	cursor = a.bridge.Cursor()
	a.logger.Info("drain complete",
		zap.Int("processed", processed),
		zap.Uint64("up_to", cursor.UpTo),
		zap.Uint64("count", cursor.Count),
	)
	if err != nil {
		return err
	}
	return printJSON(cursor)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

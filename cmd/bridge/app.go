package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultBridge/internal/bridge"
	"vaultBridge/internal/chain"
	"vaultBridge/internal/config"
	"vaultBridge/internal/custody"
	"vaultBridge/internal/fee"
	"vaultBridge/internal/metrics"
	"vaultBridge/internal/registry"
	"vaultBridge/internal/storage"
	"vaultBridge/internal/storage/postgres"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	bridge   *bridge.Bridge
	store    storage.Store
	files    *storage.FileStore
	chain    *chain.Client
	admin    common.Address
	operator common.Address
	from     common.Address

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cmd, cfg, nil)
}

func openApp(ctx context.Context, cmd *cobra.Command, cfg config.Config, reg prometheus.Registerer) (*app, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.parseIdentities(cmd); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	state, err := a.store.Load(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}

	bridgeCfg, deps, err := a.bridgeDeps(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	deps.Metrics = metrics.New(reg)
	b, err := bridge.New(bridgeCfg, state, deps, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bridge = b
	return a, nil
}

func (a *app) parseIdentities(cmd *cobra.Command) error {
	var err error
	if a.admin, err = config.ParseAddress("admin", a.cfg.Admin, true); err != nil {
		return err
	}
	if a.operator, err = config.ParseAddress("operator", a.cfg.Operator, true); err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	if a.from, err = config.ParseAddress("from", from, true); err != nil {
		return err
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.store = pg
		return nil
	}
	if a.cfg.State == "" {
		return fmt.Errorf("state path is required")
	}
	a.files = storage.NewFileStore(a.cfg.State, a.cfg.Snapshot)
	a.store = a.files
	return nil
}

func (a *app) bridgeDeps(ctx context.Context) (bridge.Config, bridge.Deps, error) {
	quote, err := config.ParseAddress("quote-token", a.cfg.QuoteToken, true)
	if err != nil {
		return bridge.Config{}, bridge.Deps{}, err
	}
	settlementFee, err := config.ParseDecimal("settlement-fee", a.cfg.SettlementFee)
	if err != nil {
		return bridge.Config{}, bridge.Deps{}, err
	}
	nativePrice, err := config.ParseDecimal("native-price", a.cfg.NativePrice)
	if err != nil {
		return bridge.Config{}, bridge.Deps{}, err
	}
	ratio, err := config.ParseDecimal("reference-ratio", a.cfg.ReferenceRatio)
	if err != nil {
		return bridge.Config{}, bridge.Deps{}, err
	}
	protocolFees, err := a.cfg.ProtocolFeeTable()
	if err != nil {
		return bridge.Config{}, bridge.Deps{}, err
	}

	cfg := bridge.Config{
		Admin:      a.admin,
		QuoteToken: quote,
		Fees: fee.Config{
			SettlementFee:  settlementFee,
			NativeDecimals: a.cfg.NativeDecimals,
			ProtocolFees:   protocolFees,
		},
	}
	deps := bridge.Deps{
		Prices:    fee.StaticPrice{Price: nativePrice},
		Ratios:    bridge.StaticRatio{Ratio: ratio},
		Persister: a.store,
		Router:    registry.DeriveRouter(a.operator),
	}

	if a.cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return bridge.Config{}, bridge.Deps{}, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, chainClient.Close)
		a.chain = chainClient
		outbox := custody.NewOutbox(a.cfg.Outbox)
		pending, err := outbox.Pending()
		if err != nil {
			return bridge.Config{}, bridge.Deps{}, err
		}
		erc20 := custody.NewERC20(custody.ERC20Config{
			MaxRetries:   a.cfg.MaxRetries,
			RetryBackoff: a.cfg.RetryBackoff,
		}, chainClient, outbox, a.logger)
		erc20.Restore(pending)
		deps.Custody = erc20
	}
	return cfg, deps, nil
}

// adminCaller returns --from or the configured admin.
func (a *app) adminCaller() common.Address {
	if a.from != (common.Address{}) {
		return a.from
	}
	return a.admin
}

// settlerCaller returns --from or the configured operator.
func (a *app) settlerCaller() common.Address {
	if a.from != (common.Address{}) {
		return a.from
	}
	return a.operator
}

// userCaller returns --from, which user commands require.
func (a *app) userCaller() (common.Address, error) {
	if a.from == (common.Address{}) {
		return common.Address{}, fmt.Errorf("--from is required")
	}
	return a.from, nil
}

func printJSON(value interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

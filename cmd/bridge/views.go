package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultBridge/internal/config"
	"vaultBridge/internal/model"
)

type poolStatus struct {
	Pool    model.Pool        `json:"pool"`
	Buckets []model.PoolToken `json:"buckets"`
}

type chainStatus struct {
	ChainID         string `json:"chain_id"`
	Head            uint64 `json:"head"`
	OperatorBalance string `json:"operator_balance"`
}

type statusReport struct {
	Cursor        model.Cursor `json:"cursor"`
	Paused        model.Flags  `json:"paused"`
	QuoteToken    string       `json:"quote_token"`
	FeesCollected string       `json:"fees_collected"`
	SettlementFee string       `json:"settlement_fee"`
	Pools         []poolStatus `json:"pools"`
	Chain         *chainStatus `json:"chain,omitempty"`
}

type entryView struct {
	model.QueueEntry
	Request *requestView `json:"request,omitempty"`
	Error   string       `json:"decode_error,omitempty"`
}

type requestView struct {
	PoolID    uint64   `json:"pool_id"`
	Tokens    []string `json:"tokens"`
	Amounts   []string `json:"amounts"`
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, pause flags, fees, and pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			fee, err := a.bridge.SettlementFee(ctx)
			if err != nil {
				return err
			}
			report := statusReport{
				Cursor:        a.bridge.Cursor(),
				Paused:        a.bridge.Paused(),
				QuoteToken:    a.bridge.QuoteToken().Hex(),
				FeesCollected: a.bridge.FeesCollected().String(),
				SettlementFee: fee.String(),
			}
			for _, pool := range a.bridge.Pools() {
				report.Pools = append(report.Pools, poolStatus{Pool: pool, Buckets: a.bridge.Buckets(pool.ID)})
			}

			if a.chain != nil {
				health, err := a.chain.Health(ctx, a.operator)
				if err != nil {
					return err
				}
				report.Chain = &chainStatus{
					ChainID:         health.ChainID.String(),
					Head:            health.Head,
					OperatorBalance: health.Balance.String(),
				}
			}
			return printJSON(report)
		},
	}
}

func newPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <pool-id> <token> <user>",
		Short: "Show a user's active and pending balances",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			poolID, err := parsePoolID(args[0])
			if err != nil {
				return err
			}
			token, err := config.ParseAddress("token", args[1], false)
			if err != nil {
				return err
			}
			user, err := config.ParseAddress("user", args[2], false)
			if err != nil {
				return err
			}
			view, err := a.bridge.PoolToken(poolID, token)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"position":     a.bridge.Position(poolID, token, user),
				"pool_token":   view,
				"protocol_fee": a.bridge.ProtocolFee(token).String(),
			})
		},
	}
}

func newEntriesCmd() *cobra.Command {
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "List queue entries with their decoded requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			from, _ := cmd.Flags().GetUint64("first")
			to, _ := cmd.Flags().GetUint64("last")
			pendingOnly, _ := cmd.Flags().GetBool("pending")
			if pendingOnly {
				from = a.bridge.Cursor().UpTo + 1
			}

			entries := a.bridge.Entries(from, to)
			out := make([]entryView, 0, len(entries))
			for _, entry := range entries {
				view := entryView{QueueEntry: entry}
				req, err := a.bridge.DecodeEntry(entry)
				if err != nil {
					view.Error = err.Error()
				} else {
					view.Request = newRequestView(req)
				}
				out = append(out, view)
			}
			return printJSON(out)
		},
	}
	entriesCmd.Flags().Uint64("first", 0, "first entry id (0 means from the start)")
	entriesCmd.Flags().Uint64("last", 0, "last entry id (0 means to the end)")
	entriesCmd.Flags().Bool("pending", false, "only list unprocessed entries")
	return entriesCmd
}

func newRequestView(req model.Request) *requestView {
	view := &requestView{
		PoolID:    req.PoolID,
		Sender:    req.Sender.Hex(),
		Recipient: req.Recipient.Hex(),
	}
	for i, token := range req.Tokens {
		view.Tokens = append(view.Tokens, token.Hex())
		view.Amounts = append(view.Amounts, req.Amounts[i].String())
	}
	return view
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Write a snapshot and truncate the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.files == nil {
				return fmt.Errorf("compact only applies to the journal store")
			}
			snapshot := a.bridge.Snapshot()
			if err := a.files.Compact(ctx, snapshot); err != nil {
				return err
			}
			a.logger.Info("journal compacted",
				zap.String("snapshot", a.cfg.Snapshot),
				zap.Int("entries", len(snapshot.Entries)),
				zap.Int("positions", len(snapshot.Positions)),
			)
			return printJSON(map[string]string{"snapshot": a.cfg.Snapshot, "entries": strconv.Itoa(len(snapshot.Entries))})
		},
	}
}

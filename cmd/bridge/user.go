package main

import (
	"context"
	"math/big"

	"github.com/spf13/cobra"

	"vaultBridge/internal/config"
)

type enqueued struct {
	ID  uint64 `json:"id"`
	Fee string `json:"fee"`
}

func newDepositCmd() *cobra.Command {
	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Queue deposits",
	}

	perpCmd := &cobra.Command{
		Use:   "perp <pool-id> <token> <amount>",
		Short: "Queue a deposit into a perp pool",
		Args:  cobra.ExactArgs(3),
		RunE:  runDepositPerp,
	}
	perpCmd.Flags().String("recipient", "", "credited address (defaults to --from)")
	perpCmd.Flags().String("fee", "", "native fee to pay in wei (defaults to the current quote)")

	spotCmd := &cobra.Command{
		Use:   "spot <pool-id> <base> <quote> <base-amount> [quote-amount]",
		Short: "Queue a two-leg deposit into a spot pool; quote-amount defaults to the balanced amount",
		Args:  cobra.RangeArgs(4, 5),
		RunE:  runDepositSpot,
	}
	spotCmd.Flags().String("recipient", "", "credited address (defaults to --from)")
	spotCmd.Flags().String("fee", "", "native fee to pay in wei (defaults to the current quote)")

	depositCmd.AddCommand(perpCmd, spotCmd)
	return depositCmd
}

func newWithdrawCmd() *cobra.Command {
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Queue withdrawals",
	}

	perpCmd := &cobra.Command{
		Use:   "perp <pool-id> <token> <amount>",
		Short: "Debit active balance and queue a perp withdrawal",
		Args:  cobra.ExactArgs(3),
		RunE:  runWithdrawPerp,
	}
	perpCmd.Flags().String("fee", "", "native fee to pay in wei (defaults to the current quote)")

	spotCmd := &cobra.Command{
		Use:   "spot <pool-id> <base> <quote> <base-amount> <quote-amount>",
		Short: "Debit both legs and queue a spot withdrawal",
		Args:  cobra.ExactArgs(5),
		RunE:  runWithdrawSpot,
	}
	spotCmd.Flags().String("fee", "", "native fee to pay in wei (defaults to the current quote)")

	withdrawCmd.AddCommand(perpCmd, spotCmd)
	return withdrawCmd
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <pool-id> <token>",
		Short: "Claim pending balance from custody through the given token address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.userCaller()
			if err != nil {
				return err
			}
			poolID, err := parsePoolID(args[0])
			if err != nil {
				return err
			}
			token, err := config.ParseAddress("token", args[1], false)
			if err != nil {
				return err
			}
			paid, err := a.bridge.Claim(ctx, user, poolID, token)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{
				"claimed":   paid.String(),
				"remaining": a.bridge.PendingAmount(poolID, token, user).String(),
			})
		},
	}
}

func feeToPay(ctx context.Context, cmd *cobra.Command, a *app) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString("fee")
	if raw != "" {
		return config.ParseAmount("fee", raw)
	}
	return a.bridge.SettlementFee(ctx)
}

func runDepositPerp(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.userCaller()
	if err != nil {
		return err
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	token, err := config.ParseAddress("token", args[1], false)
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount("amount", args[2])
	if err != nil {
		return err
	}
	rawRecipient, _ := cmd.Flags().GetString("recipient")
	recipient, err := config.ParseAddress("recipient", rawRecipient, true)
	if err != nil {
		return err
	}
	fee, err := feeToPay(ctx, cmd, a)
	if err != nil {
		return err
	}

	id, err := a.bridge.DepositPerp(ctx, user, poolID, token, amount, recipient, fee)
	if err != nil {
		return err
	}
	return printJSON(enqueued{ID: id, Fee: fee.String()})
}

func runDepositSpot(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.userCaller()
	if err != nil {
		return err
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	base, err := config.ParseAddress("base", args[1], false)
	if err != nil {
		return err
	}
	quote, err := config.ParseAddress("quote", args[2], false)
	if err != nil {
		return err
	}
	baseAmount, err := config.ParseAmount("base-amount", args[3])
	if err != nil {
		return err
	}
	var quoteAmount *big.Int
	if len(args) == 5 {
		quoteAmount, err = config.ParseAmount("quote-amount", args[4])
	} else {
		quoteAmount, err = a.bridge.BalancedAmount(ctx, poolID, base, quote, baseAmount)
	}
	if err != nil {
		return err
	}
	rawRecipient, _ := cmd.Flags().GetString("recipient")
	recipient, err := config.ParseAddress("recipient", rawRecipient, true)
	if err != nil {
		return err
	}
	fee, err := feeToPay(ctx, cmd, a)
	if err != nil {
		return err
	}

	id, err := a.bridge.DepositSpot(ctx, user, poolID, base, quote, baseAmount, quoteAmount, recipient, fee)
	if err != nil {
		return err
	}
	return printJSON(enqueued{ID: id, Fee: fee.String()})
}

func runWithdrawPerp(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.userCaller()
	if err != nil {
		return err
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	token, err := config.ParseAddress("token", args[1], false)
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount("amount", args[2])
	if err != nil {
		return err
	}
	fee, err := feeToPay(ctx, cmd, a)
	if err != nil {
		return err
	}

	id, err := a.bridge.WithdrawPerp(ctx, user, poolID, token, amount, fee)
	if err != nil {
		return err
	}
	return printJSON(enqueued{ID: id, Fee: fee.String()})
}

func runWithdrawSpot(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.userCaller()
	if err != nil {
		return err
	}
	poolID, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	base, err := config.ParseAddress("base", args[1], false)
	if err != nil {
		return err
	}
	quote, err := config.ParseAddress("quote", args[2], false)
	if err != nil {
		return err
	}
	baseAmount, err := config.ParseAmount("base-amount", args[3])
	if err != nil {
		return err
	}
	quoteAmount, err := config.ParseAmount("quote-amount", args[4])
	if err != nil {
		return err
	}
	fee, err := feeToPay(ctx, cmd, a)
	if err != nil {
		return err
	}

	id, err := a.bridge.WithdrawSpot(ctx, user, poolID, base, quote, baseAmount, quoteAmount, fee)
	if err != nil {
		return err
	}
	return printJSON(enqueued{ID: id, Fee: fee.String()})
}

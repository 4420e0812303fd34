package main

import (
	"github.com/spf13/cobra"

	"vaultBridge/internal/bridge"
	"vaultBridge/internal/config"
	"vaultBridge/internal/model"
)

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage pools and their tokens",
	}

	addCmd := &cobra.Command{
		Use:   "add <pool-id>",
		Short: "Register a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoolAdd,
	}
	addCmd.Flags().String("type", "perp", "pool type (perp, spot)")
	addCmd.Flags().StringSlice("tokens", nil, "token addresses (comma-separated)")
	addCmd.Flags().StringSlice("hardcaps", nil, "hardcaps in base units, or max (comma-separated)")
	addCmd.Flags().String("subaccount", "", "venue subaccount (hex, up to 32 bytes)")

	tokensCmd := &cobra.Command{
		Use:   "tokens <pool-id>",
		Short: "Add tokens or aliases to a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoolTokens,
	}
	tokensCmd.Flags().StringSlice("tokens", nil, "token addresses (comma-separated)")
	tokensCmd.Flags().StringSlice("hardcaps", nil, "hardcaps in base units, or max (comma-separated)")

	hardcapsCmd := &cobra.Command{
		Use:   "hardcaps <pool-id>",
		Short: "Update deposit hardcaps; 0 blocks deposits through that address",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoolHardcaps,
	}
	hardcapsCmd.Flags().StringSlice("tokens", nil, "token addresses (comma-separated)")
	hardcapsCmd.Flags().StringSlice("hardcaps", nil, "hardcaps in base units, or max (comma-separated)")

	activateCmd := &cobra.Command{
		Use:   "activate <pool-id> <token>",
		Short: "Enable or disable deposits into a pool token",
		Args:  cobra.ExactArgs(2),
		RunE:  runPoolActivate,
	}
	activateCmd.Flags().Bool("active", true, "active flag")

	poolCmd.AddCommand(addCmd, tokensCmd, hardcapsCmd, activateCmd)
	return poolCmd
}

func runPoolAdd(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	typeName, _ := cmd.Flags().GetString("type")
	poolType, err := model.ParsePoolType(typeName)
	if err != nil {
		return err
	}
	rawTokens, _ := cmd.Flags().GetStringSlice("tokens")
	rawCaps, _ := cmd.Flags().GetStringSlice("hardcaps")
	tokens, hardcaps, err := parseTokenList(rawTokens, rawCaps)
	if err != nil {
		return err
	}
	rawSub, _ := cmd.Flags().GetString("subaccount")
	subaccount, err := parseSubaccount(rawSub)
	if err != nil {
		return err
	}

	if err := a.bridge.AddPool(ctx, a.adminCaller(), id, tokens, hardcaps, poolType, subaccount); err != nil {
		return err
	}
	return printJSON(a.bridge.Buckets(id))
}

func runPoolTokens(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	rawTokens, _ := cmd.Flags().GetStringSlice("tokens")
	rawCaps, _ := cmd.Flags().GetStringSlice("hardcaps")
	tokens, hardcaps, err := parseTokenList(rawTokens, rawCaps)
	if err != nil {
		return err
	}
	if err := a.bridge.AddPoolTokens(ctx, a.adminCaller(), id, tokens, hardcaps); err != nil {
		return err
	}
	return printJSON(a.bridge.Buckets(id))
}

func runPoolHardcaps(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	rawTokens, _ := cmd.Flags().GetStringSlice("tokens")
	rawCaps, _ := cmd.Flags().GetStringSlice("hardcaps")
	tokens, hardcaps, err := parseTokenList(rawTokens, rawCaps)
	if err != nil {
		return err
	}
	if err := a.bridge.UpdatePoolHardcaps(ctx, a.adminCaller(), id, tokens, hardcaps); err != nil {
		return err
	}

	views := make([]model.PoolTokenView, 0, len(tokens))
	for _, token := range tokens {
		view, err := a.bridge.PoolToken(id, token)
		if err != nil {
			return err
		}
		views = append(views, view)
	}
	return printJSON(views)
}

func runPoolActivate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := parsePoolID(args[0])
	if err != nil {
		return err
	}
	token, err := config.ParseAddress("token", args[1], false)
	if err != nil {
		return err
	}
	active, _ := cmd.Flags().GetBool("active")
	if err := a.bridge.SetPoolTokenActive(ctx, a.adminCaller(), id, token, active); err != nil {
		return err
	}
	view, err := a.bridge.PoolToken(id, token)
	if err != nil {
		return err
	}
	return printJSON(view)
}

func newAliasCmd() *cobra.Command {
	aliasCmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage asset aliases",
	}
	aliasCmd.AddCommand(&cobra.Command{
		Use:   "add <alias> <target>",
		Short: "Make alias resolve to the canonical asset of target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			alias, err := config.ParseAddress("alias", args[0], false)
			if err != nil {
				return err
			}
			target, err := config.ParseAddress("target", args[1], false)
			if err != nil {
				return err
			}
			if err := a.bridge.RegisterAlias(ctx, a.adminCaller(), alias, target); err != nil {
				return err
			}
			return printJSON(map[string]string{
				"alias":     alias.Hex(),
				"canonical": a.bridge.Resolve(alias).Hex(),
			})
		},
	})
	return aliasCmd
}

func newQuoteCmd() *cobra.Command {
	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Manage the quote asset",
	}
	quoteCmd.AddCommand(&cobra.Command{
		Use:   "update <token>",
		Short: "Point a new address at the quote asset without moving balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := config.ParseAddress("token", args[0], false)
			if err != nil {
				return err
			}
			if err := a.bridge.UpdateQuoteToken(ctx, a.adminCaller(), token); err != nil {
				return err
			}
			return printJSON(map[string]string{
				"quote_token": a.bridge.QuoteToken().Hex(),
				"canonical":   a.bridge.Resolve(token).Hex(),
			})
		},
	})
	return quoteCmd
}

func newPauseCmd() *cobra.Command {
	pauseCmd := &cobra.Command{
		Use:   "pause <deposits|withdrawals|claims>",
		Short: "Pause or resume one user operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			op, err := bridge.ParseOperation(args[0])
			if err != nil {
				return err
			}
			resume, _ := cmd.Flags().GetBool("resume")
			if err := a.bridge.SetPaused(ctx, a.adminCaller(), op, !resume); err != nil {
				return err
			}
			return printJSON(a.bridge.Paused())
		},
	}
	pauseCmd.Flags().Bool("resume", false, "resume the operation instead of pausing it")
	return pauseCmd
}

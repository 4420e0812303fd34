package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "bridge",
		Short:        "Slow-mode settlement ledger for venue collateral",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("from", "", "acting address (defaults to admin for admin commands, operator for settlement)")
	flags.String("admin", "", "admin address")
	flags.String("operator", "", "settlement identity bound to new pool tokens")
	flags.String("quote-token", "", "quote asset address")
	flags.String("state", "./data/journal.jsonl", "journal path")
	flags.String("snapshot", "./data/snapshot.json", "snapshot path used by compact")
	flags.String("pg-dsn", "", "Postgres DSN; replaces the journal when set")
	flags.String("rpc", "", "RPC URL for custody balance reads")
	flags.String("outbox", "./data/transfers.jsonl", "JSONL outbox for prepared claim transfers")
	flags.String("native-price", "2000", "reference units per native unit")
	flags.Int32("native-decimals", 18, "native asset decimals")
	flags.String("settlement-fee", "1", "settlement fee in reference units")
	flags.StringToString("protocol-fees", nil, "in-kind withdrawal fees (token=amount)")
	flags.String("reference-ratio", "1", "quote per base ratio for empty spot pools")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPoolCmd(),
		newAliasCmd(),
		newQuoteCmd(),
		newPauseCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newClaimCmd(),
		newConfirmCmd(),
		newDrainCmd(),
		newStatusCmd(),
		newPositionCmd(),
		newEntriesCmd(),
		newCompactCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bridge.yaml")
	content := "admin: \"0x00000000000000000000000000000000000000ad\"\n" +
		"settlement-fee: \"2.5\"\n" +
		"protocol-fees:\n  \"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\": \"1000\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("settlement-fee", "", "")
	flags.String("log-level", "", "")
	if err := flags.Parse([]string{"--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(cfgPath, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.SettlementFee != "2.5" {
		t.Fatalf("settlement fee = %q", cfg.SettlementFee)
	}
	if cfg.NativeDecimals != 18 {
		t.Fatalf("native decimals = %d", cfg.NativeDecimals)
	}

	fees, err := cfg.ProtocolFeeTable()
	if err != nil {
		t.Fatalf("protocol fees: %v", err)
	}
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if fees[token] == nil || fees[token].Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected fee table %v", fees)
	}
}

func TestLoadDrainReadsEnv(t *testing.T) {
	t.Setenv("BRIDGE_METRICS_ADDR", ":9102")
	t.Setenv("BRIDGE_OPERATOR", "0x9999999999999999999999999999999999999999")

	cfg, err := LoadDrain(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatalf("expected error for explicit missing config file, got %+v", cfg)
	}

	cfg, err = LoadDrain("", nil)
	if err != nil {
		t.Fatalf("load drain: %v", err)
	}
	if cfg.MetricsAddr != ":9102" || cfg.Operator != "0x9999999999999999999999999999999999999999" {
		t.Fatalf("unexpected drain config %+v", cfg)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("amount", "1e6")
	if err != nil || got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("1e6 = %v, %v", got, err)
	}
	if _, err := ParseAmount("amount", "1.5"); err == nil {
		t.Fatalf("expected fractional amount to fail")
	}
	if _, err := ParseAmount("amount", "-1"); err == nil {
		t.Fatalf("expected negative amount to fail")
	}
	max, err := ParseAmount("hardcap", "max")
	if err != nil || max.BitLen() != 256 {
		t.Fatalf("max = %v, %v", max, err)
	}
	if _, err := ParseAddress("admin", "nope", false); err == nil {
		t.Fatalf("expected invalid address")
	}
	if addr, err := ParseAddress("recipient", "", true); err != nil || addr != (common.Address{}) {
		t.Fatalf("optional empty address = %v, %v", addr, err)
	}
}

func TestProtocolFeeTableRejectsConflicts(t *testing.T) {
	cfg := Config{ProtocolFees: map[string]string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": "1",
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": "2",
	}}
	if _, err := cfg.ProtocolFeeTable(); err == nil {
		t.Fatalf("expected conflict for the same address with different fees")
	}

	cfg.ProtocolFees["0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"] = "1"
	table, err := cfg.ProtocolFeeTable()
	if err != nil {
		t.Fatalf("same fee twice: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("table size = %d, want 1", len(table))
	}
}

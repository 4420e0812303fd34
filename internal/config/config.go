package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Admin          string
	Operator       string
	QuoteToken     string
	State          string
	Snapshot       string
	PGDSN          string
	RPCURL         string
	Outbox         string
	NativePrice    string
	NativeDecimals int32
	SettlementFee  string
	ProtocolFees   map[string]string
	ReferenceRatio string
	MaxRetries     int
	RetryBackoff   time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	if err := readConfig(v, cfgFile); err != nil {
		return Config{}, err
	}
	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state", "./data/journal.jsonl")
	v.SetDefault("snapshot", "./data/snapshot.json")
	v.SetDefault("outbox", "./data/transfers.jsonl")
	v.SetDefault("native-price", "2000")
	v.SetDefault("native-decimals", 18)
	v.SetDefault("settlement-fee", "1")
	v.SetDefault("reference-ratio", "1")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("bridge")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Admin:          v.GetString("admin"),
		Operator:       v.GetString("operator"),
		QuoteToken:     v.GetString("quote-token"),
		State:          v.GetString("state"),
		Snapshot:       v.GetString("snapshot"),
		PGDSN:          v.GetString("pg-dsn"),
		RPCURL:         v.GetString("rpc"),
		Outbox:         v.GetString("outbox"),
		NativePrice:    v.GetString("native-price"),
		NativeDecimals: v.GetInt32("native-decimals"),
		SettlementFee:  v.GetString("settlement-fee"),
		ProtocolFees:   getStringMap(v, "protocol-fees"),
		ReferenceRatio: v.GetString("reference-ratio"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		LogLevel:       v.GetString("log-level"),
	}
}

// ParseAddress parses a 0x-prefixed hex address. Empty input yields the zero
// address when optional is true.
func ParseAddress(name, input string, optional bool) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" && optional {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, input)
	}
	return common.HexToAddress(input), nil
}

// ParseDecimal parses a positive decimal value.
func ParseDecimal(name, input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", name, err)
	}
	if value.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", name)
	}
	return value, nil
}

// ParseAmount parses a base-unit integer amount. Decimal notation is
// accepted when it has no fractional part; "max" is 2^256-1.
func ParseAmount(name, input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "max") {
		return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), nil
	}
	value, err := ParseDecimal(name, input)
	if err != nil {
		return nil, err
	}
	if !value.Equal(value.Truncate(0)) {
		return nil, fmt.Errorf("%s: %s is not a whole number of base units", name, input)
	}
	return value.BigInt(), nil
}

// ProtocolFeeTable parses the token=amount protocol fee map.
func (c Config) ProtocolFeeTable() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(c.ProtocolFees))
	for token, amount := range c.ProtocolFees {
		addr, err := ParseAddress("protocol-fees", token, false)
		if err != nil {
			return nil, err
		}
		value, err := ParseAmount("protocol-fees "+token, amount)
		if err != nil {
			return nil, err
		}
		if prev, ok := out[addr]; ok && prev.Cmp(value) != 0 {
			return nil, fmt.Errorf("protocol-fees: %s configured as both %s and %s", addr.Hex(), prev, value)
		}
		out[addr] = value
	}
	return out, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	input = strings.Trim(input, "[]")
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

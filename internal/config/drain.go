package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DrainConfig holds configuration for the drain command.
type DrainConfig struct {
	Config
	Responses   string
	MetricsAddr string
}

// LoadDrain merges config file, environment variables, and flags into
// DrainConfig.
func LoadDrain(cfgFile string, flags *pflag.FlagSet) (DrainConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetDefault("metrics-addr", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return DrainConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	if err := readConfig(v, cfgFile); err != nil {
		return DrainConfig{}, err
	}

	cfg := DrainConfig{
		Config:      fromViper(v),
		Responses:   v.GetString("responses"),
		MetricsAddr: v.GetString("metrics-addr"),
	}
	return cfg, nil
}

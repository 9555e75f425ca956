// Package ssspconfig loads the driver's runtime tunables — the
// USE_PROPER_HASHMAP/SKIP_FILTERING/NODE_SEND_COUNT_TYPE compile-time
// switches spec.md §6 turns into runtime flags — from environment variables
// prefixed SSSPCOMM_ and, optionally, a YAML file layered underneath them.
package ssspconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Flags holds every tunable the communication core reads at startup.
type Flags struct {
	UseProperHashmap  bool   `mapstructure:"use_proper_hashmap"`
	SkipFiltering     bool   `mapstructure:"skip_filtering"`
	NodeSendCountType int    `mapstructure:"node_send_count_type"`
	Verbose           bool   `mapstructure:"verbose"`
	Profiling         bool   `mapstructure:"profiling"`
	Debug             bool   `mapstructure:"debug"`
	ConfigPath        string `mapstructure:"config_path"`
}

func defaults() Flags {
	return Flags{
		UseProperHashmap:  false,
		SkipFiltering:     false,
		NodeSendCountType: 0,
		Verbose:           false,
		Profiling:         false,
		Debug:             false,
	}
}

// Load reads Flags from SSSPCOMM_*-prefixed environment variables, layered
// on top of configPath (if non-empty) and compiled-in defaults. Env always
// wins over the file, matching viper's default precedence.
func Load(configPath string) (Flags, error) {
	v := viper.New()
	f := defaults()
	v.SetDefault("use_proper_hashmap", f.UseProperHashmap)
	v.SetDefault("skip_filtering", f.SkipFiltering)
	v.SetDefault("node_send_count_type", f.NodeSendCountType)
	v.SetDefault("verbose", f.Verbose)
	v.SetDefault("profiling", f.Profiling)
	v.SetDefault("debug", f.Debug)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Flags{}, fmt.Errorf("ssspconfig: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("ssspcomm")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var out Flags
	if err := v.Unmarshal(&out); err != nil {
		return Flags{}, fmt.Errorf("ssspconfig: unmarshal: %w", err)
	}
	out.ConfigPath = configPath
	return out, nil
}

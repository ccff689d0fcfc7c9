// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config // import "go.opentelemetry.io/mobile/config"

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by Load. A double
// underscore separates path segments: SESSIONCORE_SPANS__MAX_ITEMS sets
// spans.max_items.
const EnvPrefix = "SESSIONCORE_"

// Load builds a configuration from the defaults, then the YAML file at path
// (if not empty), then the environment, then the flags that were set on
// flags (if not nil). Only flags named after a dotted configuration key,
// such as "spans.max_items", are considered. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		if err := k.Load(confmap.Provider(changedFlags(flags), "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load command line arguments: %w", err)
		}
	}

	cfg := Default()
	if err := unmarshal(k, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func changedFlags(flags *pflag.FlagSet) map[string]interface{} {
	values := map[string]interface{}{}
	flags.Visit(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") {
			values[f.Name] = f.Value.String()
		}
	})
	return values
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// unmarshal decodes k on top of cfg; keys absent from k keep their value.
func unmarshal(k *koanf.Koanf, cfg *Config) error {
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           cfg,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return nil
}

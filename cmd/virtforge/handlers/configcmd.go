package handlers

import (
	"fmt"

	"github.com/virtforge/virtforge/internal/config"
)

// ConfigList prints every declared key and its effective value.
func ConfigList(opts Options) error {
	cfg, err := loadOnly(opts)
	if err != nil {
		return err
	}
	printConfig(cfg)
	return nil
}

// ConfigGet prints one key's effective value.
func ConfigGet(opts Options, key string) error {
	if !config.IsDeclared(key) {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	cfg, err := loadOnly(opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cfg.String(key))
	return nil
}

// ConfigSet writes one key through to disk.
func ConfigSet(opts Options, key, value string) error {
	cfg, err := loadOnly(opts)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %s\n", key, value)
	return nil
}

// loadOnly opens the configuration without assembling a pipeline.
func loadOnly(opts Options) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func printConfig(cfg *config.Config) {
	for _, key := range config.DeclaredKeys() {
		value := cfg.String(key)
		// Persisted documents are multiline; summarize instead of dumping.
		if key == config.KeyAllocations || key == config.KeyAssignments {
			if value == "" {
				value = "(not computed)"
			} else {
				value = "(persisted)"
			}
		}
		fmt.Fprintf(out, "%-18s %s\n", key, value)
	}
}

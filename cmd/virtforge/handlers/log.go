package handlers

import (
	"fmt"
	"io"
	"os"

	"github.com/virtforge/virtforge/internal/config"
)

// openLogForRead is a seam for tests.
var openLogForRead = func(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Log prints the persistent run log.
func Log(opts Options) error {
	cfg, err := loadOnly(opts)
	if err != nil {
		return err
	}
	return printLog(cfg)
}

func printLog(cfg *config.Config) error {
	path := cfg.String(config.KeyLogFile)
	f, err := openLogForRead(path)
	if err != nil {
		return fmt.Errorf("opening run log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("reading run log: %w", err)
	}
	return nil
}

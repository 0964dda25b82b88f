package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"groundrag/internal/app"
	"groundrag/internal/config"
	"groundrag/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "groundrag",
	Short: "Answer questions grounded in an indexed corpus or a single document",
	Long: `groundrag answers questions using only retrieved passages or a supplied
document. When the corpus holds nothing relevant enough it says so instead of
guessing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml, then ~/.config/groundrag/config.yaml)")
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// openApp loads the config and builds the pipeline. With toFile set, logs go
// to the configured file (or a temp file) so they cannot corrupt a terminal UI.
func openApp(ctx context.Context, toFile bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Logging
	if toFile && logCfg.File == "" {
		logCfg.File = filepath.Join(os.TempDir(), "groundrag.log")
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	_ = a.Close()
	_ = a.Log.Sync()
}

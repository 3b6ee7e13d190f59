package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/craftapp/craftd/internal/config"
	"github.com/craftapp/craftd/internal/logger"
)

var (
	cfgPath      string
	workspaceDir string
	workspaceID  string
)

var rootCmd = &cobra.Command{
	Use:   "craftd",
	Short: "Workspace automation engine",
	Long: `craftd hosts the Craft workspace automation engine: it matches workspace
events against user-authored rules, expands prompt templates, and appends
every event to the workspace history log.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to craftd.yaml (default <workspace>/craftd.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVar(&workspaceID, "workspace-id", "", "workspace identifier (default the workspace directory name)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the workspace root and loads engine configuration.
// An explicit --config path wins; otherwise the workspace's craftd.yaml is
// used, and its absence falls back to defaults plus environment overrides.
func loadConfig() (*config.Config, error) {
	root, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	workspaceDir = root
	if workspaceID == "" {
		workspaceID = filepath.Base(root)
	}

	path := cfgPath
	if path == "" {
		path = filepath.Join(root, config.DefaultConfigFile)
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) logger.Closer {
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return closer
}

// workspacePath resolves a configured file path against the workspace root.
func workspacePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspaceDir, p)
}

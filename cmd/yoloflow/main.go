// Package main implements the yoloflow CLI: workspace, project, dataset,
// model, plan, and backend operations against the on-disk project core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/config"
	"github.com/AyalaKaguya/yoloflow/internal/logging"
	"github.com/AyalaKaguya/yoloflow/internal/project"
	"github.com/AyalaKaguya/yoloflow/internal/workspace"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// projectPath is the project directory for project-scoped commands.
	projectPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "yoloflow",
	Short: "Manage computer-vision training projects",
	Long: `yoloflow manages the on-disk lifecycle of computer-vision training
projects: datasets, pretrained and trained model weights, training plans,
and pluggable training backends.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/yoloflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "project directory")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(catalogCmd)
}

// app bundles the pieces every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) openWorkspace() (*workspace.Workspace, error) {
	return workspace.Open(a.cfg.Workspace.Root, a.logger)
}

func (a *app) openProject() (*project.Project, error) {
	return project.Open(projectPath, a.logger)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comfygate/internal/names"
	"comfygate/internal/workflow"
	"comfygate/pkg/config"
	"comfygate/pkg/logger"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "comfygate",
		Short: "Multi-tenant dispatch gateway for ComfyUI-compatible back-ends",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")

	rootCmd.AddCommand(serveCmd(), validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag()

			app := NewApplication()
			if err := app.Initialize(); err != nil {
				return err
			}
			if err := app.Start(); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			logger.Infof("Received exit signal: %v", sig)

			return app.Shutdown(30 * time.Second)
		},
	}
}

// validateCmd loads the configuration and every workflow descriptor, then
// exits. Meant for CI and pre-deploy checks.
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and workflow descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag()

			if err := config.Init(); err != nil {
				return err
			}
			cfg := config.GlobalConfig

			set, err := workflow.LoadDir(
				cfg.Workflow.Dir,
				names.NewMap(cfg.ModelConfig),
				names.NewMap(cfg.LoraConfig),
				cfg.Generation,
			)
			if err != nil {
				return err
			}

			fmt.Printf("configuration OK: %d servers, %d workflows\n", len(cfg.Backends()), set.Len())
			return nil
		},
	}
}

func applyConfigFlag() {
	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}
}

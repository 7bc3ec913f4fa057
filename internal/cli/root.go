// Package cli implements the toolkit command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-toolkit/internal/app"
	"github.com/golovatskygroup/mcp-toolkit/internal/config"
	"github.com/golovatskygroup/mcp-toolkit/internal/logging"
)

const version = "1.0.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "toolkit",
	Short: "MCP Toolkit - builtin utilities and custom tools over MCP",
	Long: `MCP Toolkit serves a set of builtin utility tools plus custom script and
API tools over the Model Context Protocol. Custom tools are stored as
descriptors and become callable as soon as they are saved.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies the --log-level flag when it
// was given explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// withApp loads configuration, installs the logger and builds the app for the
// duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

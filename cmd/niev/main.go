package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alznet/niev/internal/config"
	"github.com/alznet/niev/internal/interop"
	"github.com/alznet/niev/internal/logging"
)

var version = "dev"

// GlobalFlags holds the flags shared by every command
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Parallel   bool
	Backend    string
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:           "niev",
	Short:         "Cross-chain execution with zero-knowledge, merkle and consensus proofs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Parallel, "parallel", false, "run atomic phases concurrently across participants")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Backend, "zk-backend", "", "zk backend: placeholder or groth16")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(atomicCmd)
	rootCmd.AddCommand(verifyMerkleCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(globalFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if globalFlags.Verbose {
		cfg.Logging.Level = "debug"
	}
	if globalFlags.Parallel {
		cfg.Atomic.Parallel = true
	}
	if globalFlags.Backend != "" {
		cfg.ZK.Backend = globalFlags.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newService builds the interop service for a command
func newService(cmd *cobra.Command, cfg *config.Config) (*interop.Service, error) {
	svc, err := interop.NewService(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return svc, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "niev %s\n", version)
	},
}

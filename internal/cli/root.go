// Package cli implements the jsonrpc-router command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jsonrpc-router/config"
)

// NewRootCommand builds the command tree around cfg. Flags override the loaded values.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "jsonrpc-router",
		Short:         "JSON-RPC 2.0 router",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.Network, "network", cfg.Network, "stream network (tcp, unix)")
	root.PersistentFlags().StringVar(&cfg.Codec, "codec", cfg.Codec, "stream codec (json, cbor)")
	root.PersistentFlags().StringSliceVar(&cfg.EtcdEndpoints, "etcd", cfg.EtcdEndpoints, "etcd endpoints for announcement and discovery")
	root.PersistentFlags().StringVar(&cfg.Service, "service", cfg.Service, "service name in the registry")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&cfg.LogDev, "log-dev", cfg.LogDev, "human-readable development logs")

	root.AddCommand(newServeCommand(cfg), newCallCommand(cfg))
	return root
}

// Execute loads the configuration and runs the command line until ctx is done.
func Execute(ctx context.Context, version string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	root := NewRootCommand(cfg, version)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolscope",
		Short:        "Pool yield aggregation and on-chain verification",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Aggregate, verify and score one pool",
		RunE:  runInspect,
	}
	inspectCmd.Flags().String("chain", "", "chain name from config")
	inspectCmd.Flags().String("address", "", "pool address")
	inspectCmd.Flags().String("protocol", "", "protocol name used for risk metadata")
	inspectCmd.Flags().String("type", "", "pool type hint (cp, cl, lending, vault)")
	inspectCmd.Flags().String("gauge", "", "gauge address override")
	inspectCmd.Flags().String("out", "", "append the record to this JSONL file")
	inspectCmd.Flags().String("pg-dsn", "", "also store the record in Postgres")
	addCommonFlags(inspectCmd)
	root.AddCommand(inspectCmd)

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Detect the pool type and immutable facts of a pool",
		RunE:  runClassify,
	}
	classifyCmd.Flags().String("chain", "", "chain name from config")
	classifyCmd.Flags().String("address", "", "pool address")
	addCommonFlags(classifyCmd)
	root.AddCommand(classifyCmd)

	earnedCmd := &cobra.Command{
		Use:   "earned",
		Short: "Show pending gauge rewards of an account",
		RunE:  runEarned,
	}
	earnedCmd.Flags().String("chain", "", "chain name from config")
	earnedCmd.Flags().String("gauge", "", "gauge address")
	earnedCmd.Flags().String("account", "", "account address")
	addCommonFlags(earnedCmd)
	root.AddCommand(earnedCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and refresh the watchlist",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("query-timeout", 30*time.Second, "deadline for a single pool query")
	serveCmd.Flags().String("out", "", "append refreshed records to this JSONL file")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for snapshot history")
	serveCmd.Flags().String("state-file", "", "local refresher state file, Postgres is used when empty")
	serveCmd.Flags().StringSlice("watch-pools", nil, "pools to refresh (chain:address[:protocol[:type]])")
	addCommonFlags(serveCmd)
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL for a single chain setup")
	cmd.Flags().String("chain-name", "base", "chain name used with --rpc")
	cmd.Flags().String("redis-addr", "", "use Redis at this address for caches")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts for RPC reads")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

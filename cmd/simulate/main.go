package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/batchscanner/pkg/logger"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

func main() {
	if err := newSimulateCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newSimulateCmd 独立运行模拟设备网络，直到收到退出信号
func newSimulateCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Serve simulated Siklu radios over SSH",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.Config{Level: logLevel, Format: "text", Output: "console"}); err != nil {
				return err
			}
			cfg := simulate.DefaultConfig()
			if configPath != "" {
				loaded, err := simulate.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			mgr, err := simulate.Start(cfg)
			if err != nil {
				return err
			}
			defer mgr.Stop()

			names := make([]string, 0, len(cfg.Namespace))
			for ns := range cfg.Namespace {
				names = append(names, ns)
			}
			sort.Strings(names)
			for _, ns := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s (root %s)\n", ns, mgr.Addr(ns), cfg.Namespace[ns].Root)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			<-ctx.Done()
			logger.Info("Simulate: shutting down")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "simulate config file (default: built-in network)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

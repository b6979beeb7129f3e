// Command gatewd runs the reverse proxy from a JSON configuration
// file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap/exp/zapslog"

	"github.com/skaznowiecki/gatewd"
	"github.com/skaznowiecki/gatewd/internal/gatewayconfig"
	"github.com/skaznowiecki/gatewd/internal/gatewayhttp"
)

func main() {
	logger := gatewd.Log()
	_, _ = maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	_ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(zapslog.NewHandler(logger.Core()))),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewd",
		Short: "gatewd is a configuration-driven reverse proxy",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a configuration file and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}

			cfg, result, err := gatewd.Load(raw)
			if err != nil {
				for _, diag := range result.Errors {
					gatewd.Log().Sugar().Error(diag.String())
				}
				return err
			}
			for _, diag := range result.Warnings {
				gatewd.Log().Sugar().Warn(diag.String())
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			listeners, err := gatewd.Start(ctx, cfg, gatewd.Options{Logger: gatewd.Log()})
			if err != nil {
				return err
			}

			<-ctx.Done()
			gatewd.Log().Info("shutting down")
			return gatewd.Stop(context.Background(), listeners)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gatewd.json", "path to the JSON configuration file")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without starting any listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}

			result := gatewd.Validate(raw)
			for _, diag := range result.Warnings {
				fmt.Printf("warning: %s\n", diag.String())
			}
			for _, diag := range result.Errors {
				fmt.Printf("error: %s\n", diag.String())
			}
			if !result.Valid {
				return fmt.Errorf("configuration is invalid (%d error(s))", len(result.Errors))
			}
			fmt.Println("configuration is valid")
			printPathCoverage(result.Normalized.Routes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gatewd.json", "path to the JSON configuration file")
	return cmd
}

// printPathCoverage reports, per configured port, the path-keys routed
// and whether a catch-all ("/") is covered, using the same Router the
// dispatcher resolves against (spec §4.4's "external diagnostics" use
// case for Paths/HasPath).
func printPathCoverage(routes gatewayconfig.RoutingTable) {
	router := gatewayhttp.NewRouter(routes)

	ports := make([]int, 0, len(routes))
	for port := range routes {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	for _, port := range ports {
		paths := router.Paths(port)
		sort.Strings(paths)
		catchAll := router.HasPath(port, "/")
		fmt.Printf("port %d: paths=%v catch_all(/)=%t\n", port, paths, catchAll)
	}
}

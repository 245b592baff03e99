// Command monitor runs the on-chain monitoring service: it loads monitor,
// network, and trigger definitions, schedules one watcher per network, and
// dispatches triggers as matches are found. It also supports a one-shot
// scan of a single monitor against a single block.
//
// Cobra command wiring is grounded on ethkit's cmd/ethkit (root command plus
// one subcommand per verb, flags read back with cmd.Flags().GetX).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/internal/logger"
	"github.com/openzeppelin-fork/monitor-go/internal/monitorconfig"
	"github.com/openzeppelin-fork/monitor-go/pkg/blockstore"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/dispatch"
	"github.com/openzeppelin-fork/monitor-go/pkg/filter"
	"github.com/openzeppelin-fork/monitor-go/pkg/metrics"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/rpc"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
	"github.com/openzeppelin-fork/monitor-go/pkg/tracker"
	"github.com/openzeppelin-fork/monitor-go/pkg/watcher"
)

var version = "dev"

var (
	flagConfigDir   string
	flagDataDir     string
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "monitor",
	Short: "On-chain monitoring service: block tracking, filtering, and trigger dispatch",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "./config",
		"root directory containing monitors/, networks/, and triggers/")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "./data",
		"directory for checkpoints, block dumps, and missed-block logs")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("monitor", version)
		},
	}
}

func newLogger() (*zap.Logger, error) {
	log, err := logger.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("monitor: building logger: %w", err)
	}
	return log, nil
}

// newRunCmd is the default long-running service: scheduler plus metrics
// server, one watcher per configured network.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the scheduler and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutdown signal received")
				cancel()
			}()

			return runService(ctx, log)
		},
	}
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "address the /metrics and /health endpoints listen on")
	return cmd
}

func runService(ctx context.Context, log *zap.Logger) error {
	set, err := monitorconfig.Load(flagConfigDir)
	if err != nil {
		return fmt.Errorf("monitor: loading config: %w", err)
	}
	log.Info("configuration loaded",
		zap.Int("monitors", len(set.Monitors)), zap.Int("networks", len(set.Networks)), zap.Int("triggers", len(set.Triggers)))

	m := metrics.New()
	m.LoadSet(set)

	resolver := secret.NewDefaultResolver(log)
	store, err := blockstore.New(flagDataDir, log)
	if err != nil {
		return fmt.Errorf("monitor: opening block store: %w", err)
	}

	disp := dispatch.New(set.Monitors, set.Triggers, resolver, log, m)
	engine := filter.New(log)
	sched := watcher.NewScheduler(log)

	for _, network := range set.Networks {
		if !network.Kind.Supported() {
			log.Warn("skipping unsupported chain kind", zap.String("network", network.ID), zap.String("kind", string(network.Kind)))
			continue
		}
		client, err := newChainClient(ctx, log, network, resolver)
		if err != nil {
			return fmt.Errorf("monitor: building client for network %q: %w", network.ID, err)
		}

		trk := tracker.New(100, store, log)
		w := watcher.New(network, client, store, trk, engine, set.MonitorsForNetwork(network.ID), disp.Handle, log, m)
		if err := sched.Start(ctx, w); err != nil {
			return fmt.Errorf("monitor: scheduling network %q: %w", network.ID, err)
		}
	}
	sched.Run()
	defer sched.Shutdown(context.Background())

	metricsSrv := metrics.NewServer(flagMetricsAddr, m, log)
	sampleCtx, sampleCancel := context.WithCancel(ctx)
	defer sampleCancel()
	go m.RunSystemSampler(sampleCtx, 15*time.Second, log)

	return metricsSrv.Start(ctx)
}

func newChainClient(ctx context.Context, log *zap.Logger, network model.Network, resolver secret.Resolver) (rpc.Client, error) {
	switch network.Kind {
	case chain.KindEVM:
		return rpc.NewEVMClient(ctx, log, network, resolver)
	case chain.KindStellar:
		return rpc.NewStellarClient(ctx, log, network, resolver)
	default:
		return nil, fmt.Errorf("unsupported chain kind %q", network.Kind)
	}
}

// newScanCmd runs one monitor's pipeline against a single block outside the
// scheduler, printing matches as JSON and still firing configured triggers.
func newScanCmd() *cobra.Command {
	var (
		monitorPath string
		networkID   string
		blockNumber uint64
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "run one monitor definition against a single block",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			data, err := os.ReadFile(monitorPath)
			if err != nil {
				return fmt.Errorf("monitor: reading monitor definition: %w", err)
			}
			var mon model.Monitor
			if err := json.Unmarshal(data, &mon); err != nil {
				return fmt.Errorf("monitor: parsing monitor definition: %w", err)
			}

			set, err := monitorconfig.Load(flagConfigDir)
			if err != nil {
				return fmt.Errorf("monitor: loading config: %w", err)
			}
			networks := set.NetworksByID()
			if networkID == "" && len(mon.Networks) > 0 {
				networkID = mon.Networks[0]
			}
			network, ok := networks[networkID]
			if !ok {
				return fmt.Errorf("monitor: unknown network %q", networkID)
			}

			resolver := secret.NewDefaultResolver(log)
			client, err := newChainClient(cmd.Context(), log, network, resolver)
			if err != nil {
				return fmt.Errorf("monitor: building client: %w", err)
			}
			defer client.Close()

			blocks, err := client.GetBlocks(cmd.Context(), blockNumber, &blockNumber)
			if err != nil {
				return fmt.Errorf("monitor: fetching block %d: %w", blockNumber, err)
			}
			if len(blocks) == 0 {
				return fmt.Errorf("monitor: no block returned for %d", blockNumber)
			}

			engine := filter.New(log)
			specCache, err := filter.NewSpecCache()
			if err != nil {
				return fmt.Errorf("monitor: building spec cache: %w", err)
			}
			matches, err := engine.FilterBlock(cmd.Context(), client, network, blocks[0], []model.Monitor{mon}, specCache)
			if err != nil {
				return fmt.Errorf("monitor: filtering block: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(matches); err != nil {
				return fmt.Errorf("monitor: encoding matches: %w", err)
			}

			disp := dispatch.New([]model.Monitor{mon}, set.Triggers, resolver, log, nil)
			disp.Handle(cmd.Context(), chain.ProcessedBlock{NetworkID: network.ID, BlockNumber: blockNumber, Matches: matches})
			return nil
		},
	}
	cmd.Flags().StringVar(&monitorPath, "monitor-path", "", "path to a single monitor JSON definition")
	cmd.Flags().StringVar(&networkID, "network", "", "network id to run against (defaults to the monitor's first network)")
	cmd.Flags().Uint64Var(&blockNumber, "block", 0, "block number to scan")
	cmd.MarkFlagRequired("monitor-path") //nolint:errcheck
	cmd.MarkFlagRequired("block")        //nolint:errcheck
	return cmd
}

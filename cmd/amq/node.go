package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amqnet/amq/broker"
	"github.com/amqnet/amq/config"
	"github.com/amqnet/amq/internal/health"
	"github.com/amqnet/amq/internal/logger"
	"github.com/amqnet/amq/internal/metrics"
)

var (
	nodeMetricsAddr string
	nodeHealthAddr  string
)

var nodeCmd = &cobra.Command{
	Use:   "node <CONFIG_FILE>",
	Short: "Start a broker node",
	Args:  cobra.ExactArgs(1),
	RunE:  runNode,
}

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.Flags().StringVar(&nodeMetricsAddr, "metrics-addr", ":9090", "bind address for the Prometheus /metrics endpoint")
	nodeCmd.Flags().StringVar(&nodeHealthAddr, "health-addr", ":8081", "bind address for the /health, /health/live, /health/ready endpoints")
}

func runNode(cmd *cobra.Command, args []string) error {
	log := logger.NewDefaultLogger()

	cfg, err := config.LoadNodeConfig(args[0])
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}

	b := broker.New(log)

	addr := fmt.Sprintf(":%d", cfg.Port)
	node := broker.NewNode(addr, b, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go b.Run(ctx)

	checker := health.NewChecker(2 * time.Second)
	checker.SetLogger(log)
	checker.RegisterCheck("accept_loop", health.AcceptLoopCheck(node.Done()))
	checker.RegisterCheck("registry", health.RegistrySizeCheck(b.RegistrySize))

	healthSrv := health.NewServer(checker, log, nodeHealthAddr)
	if err := healthSrv.Start(); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}

	go func() {
		if err := metrics.StartServer(nodeMetricsAddr); err != nil {
			log.Warn("metrics server stopped", logger.Error(err))
		}
	}()

	log.Info("node listening", logger.String("addr", addr),
		logger.String("metrics_addr", nodeMetricsAddr),
		logger.String("health_addr", nodeHealthAddr))

	errCh := make(chan error, 1)
	go func() { errCh <- node.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("accept loop: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return healthSrv.Stop(shutdownCtx)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amqnet/amq/client"
	"github.com/amqnet/amq/config"
	"github.com/amqnet/amq/internal/logger"
)

var clientCmd = &cobra.Command{
	Use:   "client <CONFIG_FILE>",
	Short: "Start an interactive client REPL",
	Args:  cobra.ExactArgs(1),
	RunE:  runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
}

func runClient(cmd *cobra.Command, args []string) error {
	log := logger.NewDefaultLogger()

	cfg, err := config.LoadClientConfig(args[0])
	if err != nil {
		return fmt.Errorf("load client config: %w", err)
	}

	c, err := client.Dial(cfg, log)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("register with node: %w", err)
	}

	repl := client.NewREPL(c, cfg.ID, os.Stdin, os.Stdout, log)
	return repl.Run()
}

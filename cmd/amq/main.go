package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "amq",
	Short: "amq - identity-addressed message-queue broker and client",
	Long: `amq runs either half of a small identity-addressed message-queue
network: a broker node that routes framed JSON messages between
clients by Ed25519 public key, or an interactive client that
connects to one.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

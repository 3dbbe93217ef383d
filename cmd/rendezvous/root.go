package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Rendezvous is a distributed connection and session registry",
	Long: `Rendezvous tracks WebSocket connections and tenant-scoped sessions in a
shared state store so any instance behind a load balancer can answer for any
connection.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")
}

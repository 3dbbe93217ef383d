package main

import (
	"fmt"
	"strings"

	rendezvous "github.com/rendezvous-io/rendezvous"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of rendezvous",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rendezvous version %s\n", strings.TrimSpace(rendezvous.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion is a password authentication service",
	Long: `An authentication service built on a PAKE handshake: the server never sees
passwords, only blinded protocol messages and sealed envelopes. Supports an
optional TOTP second factor on top of the exchange.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

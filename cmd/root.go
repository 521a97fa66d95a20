package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-arb",
	Short: "Polymarket arbitrage bot",
	Long: `Polymarket arbitrage bot that subscribes to new emerging binary markets,
detects arbitrage opportunities when the UP ask + DOWN ask sums to less than
1.0 minus fees and the configured margin, and executes both legs in paper or
live trading mode.

The bot polls the Polymarket Gamma API for new markets, subscribes to their
orderbooks via WebSocket, and monitors both outcome legs for price
inefficiencies.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}

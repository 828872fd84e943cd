package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sfrt",
	Short: "SFRT point ledger and reward distribution service",
	Long: `SFRT keeps per-space point balances with an append-only ledger,
distributes sale/purchase/staking/governance/liquidity rewards and
exposes supply statistics over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file (yaml); empty uses defaults and SFRT_* env")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package cmd defines the CLI commands for the catalog-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Harvests product records from a dynamically rendered storefront.",
		Long: `catalog-crawler walks a JavaScript-rendered e-commerce site with a
headless browser: it discovers category pages from configured seeds,
scrolls each infinite listing until it stops growing, extracts one
record per product page, and writes the batch as a JSONL artifact.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

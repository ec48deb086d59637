package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skuflow",
	Short: "Asynchronous product catalog importer",
	Long: `skuflow bulk-loads product catalogs from uploaded CSV or XLSX files.
Uploads are processed in the background; clients poll a task ID for progress
and registered webhook endpoints are notified when an import finishes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

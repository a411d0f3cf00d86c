package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "inventory",
	Short:   "Show inventory statistics",
	Long: `Show inventory statistics computed from local data: product count,
total stock, products below the low-stock threshold, and movements
recorded today. Works fully offline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.engine.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(stats)
		}
		fmt.Printf("Products:         %d\n", stats.TotalProducts)
		fmt.Printf("Total stock:      %d\n", stats.TotalStock)
		fmt.Printf("Low stock:        %d (below %d)\n", stats.LowStock, a.cfg.Sync.LowStockThreshold)
		fmt.Printf("Movements today:  %d\n", stats.TodayMovements)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

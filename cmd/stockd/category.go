package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	GroupID: "inventory",
	Short:   "List product categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		categories, err := a.engine.ListCategories(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(categories)
		}
		for _, c := range categories {
			fmt.Printf("%-5d %-15s %s\n", c.ID, c.Name, c.Color)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

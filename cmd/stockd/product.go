package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/store"
)

var productCmd = &cobra.Command{
	Use:     "product",
	GroupID: "inventory",
	Short:   "Manage products",
}

var (
	addDesc     string
	addPrice    float64
	addQty      int64
	addCategory string
	addScanCode string
)

var productAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a product",
	Long: `Add a product to the inventory.

The product is saved locally and assigned a unique scan code. If the
remote store is reachable it is uploaded immediately; otherwise the next
sync uploads it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p := &model.Product{
			Name:        args[0],
			Description: addDesc,
			Price:       addPrice,
			Quantity:    addQty,
			Category:    addCategory,
			ScanCode:    addScanCode,
		}
		if err := a.engine.AddProduct(cmd.Context(), p); err != nil {
			return err
		}

		if flagJSON {
			return printJSON(p)
		}
		fmt.Printf("Added product %d: %s\n", p.ID, p.Name)
		fmt.Printf("  Scan code: %s\n", p.ScanCode)
		if p.Linked() {
			fmt.Printf("  Synced as %s\n", p.RemoteID)
		} else {
			fmt.Println("  Pending upload")
		}
		return nil
	},
}

var (
	listCategory string
	listUnlinked bool
)

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		products, err := a.engine.ListProducts(cmd.Context(), store.ProductFilter{
			Category:     listCategory,
			UnlinkedOnly: listUnlinked,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(products)
		}
		printProductTable(products)
		return nil
	},
}

var productShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one product with its movement history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := resolveProduct(cmd, a, args[0])
		if err != nil {
			return err
		}
		movements, err := a.engine.ListProductMovements(cmd.Context(), p.ID)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(map[string]any{"product": p, "movements": movements})
		}
		fmt.Printf("%s (#%d)\n", p.Name, p.ID)
		if p.Description != "" {
			fmt.Printf("  %s\n", p.Description)
		}
		fmt.Printf("  Category:  %s\n", p.Category)
		fmt.Printf("  Price:     %.2f\n", p.Price)
		fmt.Printf("  Quantity:  %d\n", p.Quantity)
		fmt.Printf("  Scan code: %s\n", p.ScanCode)
		if p.Linked() {
			fmt.Printf("  Remote:    %s\n", p.RemoteID)
		} else {
			fmt.Println("  Remote:    pending upload")
		}
		if len(movements) > 0 {
			fmt.Println("\nMovements:")
			for _, m := range movements {
				printMovement(m, "")
			}
		}
		return nil
	},
}

var (
	updateName  string
	updateDesc  string
	updatePrice float64
	updateQty   int64
	updateCat   string
)

var productUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update product fields",
	Long: `Update a product. Only the flags you pass change; quantity changes
made here bypass the movement ledger, so prefer 'stockd move' for stock
adjustments.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := resolveProduct(cmd, a, args[0])
		if err != nil {
			return err
		}

		var patch model.ProductPatch
		if cmd.Flags().Changed("name") {
			patch.Name = &updateName
		}
		if cmd.Flags().Changed("desc") {
			patch.Description = &updateDesc
		}
		if cmd.Flags().Changed("price") {
			patch.Price = &updatePrice
		}
		if cmd.Flags().Changed("qty") {
			patch.Quantity = &updateQty
		}
		if cmd.Flags().Changed("category") {
			patch.Category = &updateCat
		}
		if patch.Empty() {
			return fmt.Errorf("nothing to update: pass at least one field flag")
		}

		updated, err := a.engine.UpdateProduct(cmd.Context(), p.ID, patch)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(updated)
		}
		fmt.Printf("Updated product %d: %s\n", updated.ID, updated.Name)
		return nil
	},
}

var deleteYes bool

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product (movement history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := resolveProduct(cmd, a, args[0])
		if err != nil {
			return err
		}
		if !deleteYes {
			return fmt.Errorf("refusing to delete %q without --yes", p.Name)
		}
		if err := a.engine.DeleteProduct(cmd.Context(), p.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted product %d: %s\n", p.ID, p.Name)
		return nil
	},
}

var productFindCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search products by name, description, or scan code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		products, err := a.engine.SearchProducts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(products)
		}
		printProductTable(products)
		return nil
	},
}

// resolveProduct accepts a numeric local ID or a scan code. Scan codes that
// are unknown locally fall back to a remote lookup.
func resolveProduct(cmd *cobra.Command, a *app, arg string) (*model.Product, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return a.engine.GetProduct(cmd.Context(), id)
	}
	return a.engine.GetProductByScanCode(cmd.Context(), arg)
}

func printProductTable(products []*model.Product) {
	if len(products) == 0 {
		fmt.Println("No products found")
		return
	}
	fmt.Printf("%-5s %-30s %-12s %8s %6s  %s\n",
		"ID", "NAME", "CATEGORY", "PRICE", "QTY", "SYNC")
	for _, p := range products {
		sync := "pending"
		if p.Linked() {
			sync = "synced"
		}
		fmt.Printf("%-5d %-30s %-12s %8.2f %6d  %s\n",
			p.ID, truncate(p.Name, 30), p.Category, p.Price, p.Quantity, sync)
	}
}

// truncate shortens s to at most n characters, counting runes so a
// multibyte name is never cut mid-character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func init() {
	productAddCmd.Flags().StringVar(&addDesc, "desc", "", "description")
	productAddCmd.Flags().Float64Var(&addPrice, "price", 0, "unit price")
	productAddCmd.Flags().Int64Var(&addQty, "qty", 0, "initial quantity")
	productAddCmd.Flags().StringVar(&addCategory, "category", "Other", "category name")
	productAddCmd.Flags().StringVar(&addScanCode, "scan-code", "", "scan code (generated when empty)")

	productListCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	productListCmd.Flags().BoolVar(&listUnlinked, "pending", false, "only products awaiting upload")

	productUpdateCmd.Flags().StringVar(&updateName, "name", "", "new name")
	productUpdateCmd.Flags().StringVar(&updateDesc, "desc", "", "new description")
	productUpdateCmd.Flags().Float64Var(&updatePrice, "price", 0, "new unit price")
	productUpdateCmd.Flags().Int64Var(&updateQty, "qty", 0, "new quantity")
	productUpdateCmd.Flags().StringVar(&updateCat, "category", "", "new category")

	productDeleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "confirm deletion")

	productCmd.AddCommand(productAddCmd)
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productShowCmd)
	productCmd.AddCommand(productUpdateCmd)
	productCmd.AddCommand(productDeleteCmd)
	productCmd.AddCommand(productFindCmd)
	rootCmd.AddCommand(productCmd)
}

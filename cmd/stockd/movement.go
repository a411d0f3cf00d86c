package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safeproducts/stockd/internal/model"
	"github.com/safeproducts/stockd/internal/store"
)

var moveCmd = &cobra.Command{
	Use:     "move",
	GroupID: "inventory",
	Short:   "Record stock movements",
}

var moveNote string

var moveInCmd = &cobra.Command{
	Use:   "in <product> <qty>",
	Short: "Record incoming stock",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordMove(cmd, model.DirectionIn, args)
	},
}

var moveOutCmd = &cobra.Command{
	Use:   "out <product> <qty>",
	Short: "Record outgoing stock",
	Long: `Record outgoing stock. The movement is rejected, locally and
without any partial effect, when the product does not hold enough stock.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recordMove(cmd, model.DirectionOut, args)
	},
}

func recordMove(cmd *cobra.Command, dir model.Direction, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := resolveProduct(cmd, a, args[0])
	if err != nil {
		return err
	}
	var qty int64
	if _, err := fmt.Sscanf(args[1], "%d", &qty); err != nil {
		return fmt.Errorf("invalid quantity %q", args[1])
	}

	m := &model.Movement{
		ProductID: p.ID,
		Direction: dir,
		Quantity:  qty,
		Note:      moveNote,
	}
	if _, err := a.engine.RecordMovement(cmd.Context(), m); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return fmt.Errorf("%s has only %d in stock, cannot move %d out",
				p.Name, p.Quantity, qty)
		}
		return err
	}

	updated, err := a.engine.GetProduct(cmd.Context(), p.ID)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(map[string]any{"movement": m, "quantity": updated.Quantity})
	}
	fmt.Printf("Recorded %s %d for %s (now %d in stock)\n",
		dir, qty, p.Name, updated.Quantity)
	return nil
}

var movementsCmd = &cobra.Command{
	Use:     "movements [product]",
	GroupID: "inventory",
	Short:   "Show movement history, newest first",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		var movements []*model.Movement
		if len(args) == 1 {
			p, err := resolveProduct(cmd, a, args[0])
			if err != nil {
				return err
			}
			movements, err = a.engine.ListProductMovements(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
		} else {
			movements, err = a.engine.ListMovements(cmd.Context())
			if err != nil {
				return err
			}
		}

		if flagJSON {
			return printJSON(movements)
		}
		if len(movements) == 0 {
			fmt.Println("No movements recorded")
			return nil
		}
		for _, m := range movements {
			printMovement(m, fmt.Sprintf("product %d  ", m.ProductID))
		}
		return nil
	},
}

func printMovement(m *model.Movement, prefix string) {
	arrow := "+"
	if m.Direction == model.DirectionOut {
		arrow = "-"
	}
	line := fmt.Sprintf("  %s  %s%s%d", m.CreatedAt.Format("2006-01-02 15:04"), prefix, arrow, m.Quantity)
	if m.Note != "" {
		line += "  (" + m.Note + ")"
	}
	if m.RemoteID == "" {
		line += "  [unpushed]"
	}
	fmt.Println(line)
}

func init() {
	moveCmd.PersistentFlags().StringVar(&moveNote, "note", "", "note attached to the movement")
	moveCmd.AddCommand(moveInCmd)
	moveCmd.AddCommand(moveOutCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(movementsCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safeproducts/stockd/internal/reconciler"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile with the remote store",
}

var syncUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Push local state to the remote store",
	Long: `Push local state to the remote store: queued updates and deletes
first, then every product that has never been uploaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.engine.SyncUp(cmd.Context())
		if err != nil {
			return err
		}
		printSummary("sync-up", summary)
		return nil
	},
}

var syncDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Pull remote state into the local store",
	Long: `Pull remote state into the local store. Records are matched by
remote identifier, then by client UID, then by name, category, and price;
newer remote values win, and local duplicates are cleaned up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.engine.SyncDown(cmd.Context())
		if err != nil {
			return err
		}
		printSummary("sync-down", summary)
		return nil
	},
}

var syncFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run a full reconciliation (up, then down, then movement retry)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		up, down, err := a.engine.SyncFull(cmd.Context())
		if err != nil {
			return err
		}
		printSummary("sync-up", up)
		printSummary("sync-down", down)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		status, err := a.engine.Status(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(status)
		}

		conn := "offline"
		if status.Online {
			conn = "online"
		}
		fmt.Printf("Remote:             %s\n", conn)
		fmt.Printf("Reconciler:         %s\n", status.State)
		fmt.Printf("Pending uploads:    %d\n", status.UnlinkedProducts)
		fmt.Printf("Queued mutations:   %d\n", status.PendingOutbox)
		fmt.Printf("Unpushed movements: %d\n", status.UnpushedMovements)
		return nil
	},
}

func printSummary(name string, s reconciler.Summary) {
	if flagJSON {
		_ = printJSON(map[string]any{"pass": name, "summary": s})
		return
	}
	if s.Skipped {
		fmt.Printf("%s skipped (remote unavailable or pass in flight)\n", name)
		return
	}
	fmt.Printf("%s: created=%d updated=%d linked=%d removed=%d drained=%d\n",
		name, s.Created, s.Updated, s.Linked, s.Removed, s.Drained)
}

func init() {
	syncCmd.AddCommand(syncUpCmd)
	syncCmd.AddCommand(syncDownCmd)
	syncCmd.AddCommand(syncFullCmd)
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}

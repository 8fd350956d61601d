package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mdmestre/enroller/internal/engine"
)

// PendingCmd returns the pending command.
func PendingCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List unprocessed contacts and the next cycle's plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ledger, closeLedger, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			rec, err := ledger.Load(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := newSource(cfg, cfg.Logger()).List(cmd.Context())
			if err != nil {
				return err
			}
			printPending(cmd.OutOrStdout(), engine.PlanNext(ids, rec, cfg.AddQuota, cfg.LinkQuota), limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum contacts to list (0 for all)")
	return cmd
}

func printPending(w io.Writer, p engine.Preview, limit int) {
	add := make(map[string]struct{}, len(p.ToAdd))
	for _, id := range p.ToAdd {
		add[id] = struct{}{}
	}
	link := make(map[string]struct{}, len(p.ToLink))
	for _, id := range p.ToLink {
		link[id] = struct{}{}
	}

	fmt.Fprintf(w, "%d pending, next cycle: %d add, %d link\n", len(p.Pending), len(p.ToAdd), len(p.ToLink))
	for i, id := range p.Pending {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "  ... %d more\n", len(p.Pending)-limit)
			break
		}
		tag := "     "
		if _, ok := add[id]; ok {
			tag = color.New(color.FgGreen).Sprint("ADD  ")
		} else if _, ok := link[id]; ok {
			tag = color.New(color.FgBlue).Sprint("LINK ")
		}
		fmt.Fprintf(w, "  %s%s\n", tag, id)
	}
}

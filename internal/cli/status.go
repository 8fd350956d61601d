package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mdmestre/enroller/internal/config"
	"github.com/mdmestre/enroller/pkg/api"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show campaign progress from the ledger",
		Long: `Compare the contact list with the ledger and print how many contacts
were added directly, how many received the invite link, and how many are
still pending. Nothing is sent.`,
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
			printStatus(cmd.OutOrStdout(), cfg, ids, rec)
			return nil
		},
	}
}

func printStatus(w io.Writer, cfg config.Config, ids []string, rec *api.Record) {
	added, linked := 0, 0
	for _, id := range ids {
		switch {
		case rec.IsAdded(id):
			added++
		case rec.IsLinked(id):
			linked++
		}
	}
	pending := len(ids) - added - linked

	fmt.Fprintln(w, "Enrollment Status")
	fmt.Fprintf(w, "  Group:    %s\n", valueOr(cfg.GroupID, "(not set)"))
	fmt.Fprintf(w, "  Contacts: %s\n", cfg.ContactsPath)
	fmt.Fprintf(w, "  Ledger:   %s (%s)\n", ledgerLocation(cfg), cfg.LedgerBackend)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Total:    %d\n", len(ids))
	fmt.Fprintf(w, "  Added:    %s\n", color.New(color.FgGreen).Sprint(added))
	fmt.Fprintf(w, "  Linked:   %s\n", color.New(color.FgBlue).Sprint(linked))
	if pending > 0 {
		fmt.Fprintf(w, "  Pending:  %s\n", color.New(color.FgYellow).Sprint(pending))
	} else {
		fmt.Fprintf(w, "  Pending:  %s\n", color.New(color.FgGreen).Sprint("0 (done)"))
	}

	if stale := len(rec.Added) + len(rec.Linked) - added - linked; stale > 0 {
		fmt.Fprintf(w, "  %s %d ledger entries are no longer in the contact list\n",
			color.New(color.FgYellow).Sprint("!"), stale)
	}
}

func ledgerLocation(cfg config.Config) string {
	switch cfg.LedgerBackend {
	case config.LedgerJSON, config.LedgerSQLite:
		return cfg.LedgerPath
	default:
		return cfg.LedgerName
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

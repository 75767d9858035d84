package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"market-sync/internal/domain"
	"market-sync/internal/storage"
)

func historyCmd() *cobra.Command {
	var (
		event string
		item  int64
		since time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print journaled ledger events, oldest first",
		Long: "Print events recorded by watch. Only a persistent journal backend " +
			"(clickhouse) retains events across runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			filter := storage.JournalFilter{
				Name:   domain.EventName(event),
				ItemID: domain.ItemID(item),
				Limit:  limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since).UnixMilli()
			}

			records, err := a.journal.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OBSERVED\tEVENT\tITEM\tPAYLOAD")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					time.UnixMilli(rec.ObservedAt).UTC().Format(time.RFC3339),
					rec.Name, rec.ItemID, rec.Payload)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "only this event name")
	cmd.Flags().Int64Var(&item, "item", 0, "only events for this item id")
	cmd.Flags().DurationVar(&since, "since", 0, "only events observed within this duration")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to print")
	return cmd
}

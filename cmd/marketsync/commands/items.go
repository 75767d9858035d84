package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"market-sync/internal/cache"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every item, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			view := a.newCache()
			defer view.Close()
			if err := view.Load(cmd.Context()); err != nil {
				return err
			}
			view.Wait()
			return printView(cmd.OutOrStdout(), view)
		},
	}
}

func claimableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claimable",
		Short: "Print items whose funds the acting address can claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.actor == "" {
				logger.Println("No acting address configured, nothing to claim")
			}

			view := a.newCache()
			defer view.Close()
			if err := view.InstallClaimList(cmd.Context()); err != nil {
				return err
			}
			view.Wait()
			return printView(cmd.OutOrStdout(), view)
		},
	}
}

func printView(out io.Writer, view *cache.Cache) error {
	entries := view.Snapshot()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Item.ID > entries[j].Item.ID
	})

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tOWNER\tOFFER\tMAX\tENDS\tOWN\tOFFERABLE\tCLAIMABLE\tTITLE")
	for _, e := range entries {
		title := "(pending)"
		if e.Content != nil {
			title = e.Content.Field("title")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%t\t%t\t%s\n",
			e.Item.ID,
			e.Item.State,
			cache.CompactAddress(e.Item.Owner),
			e.Item.CurrentOfferValue,
			e.Item.MaxValue,
			cache.EndDate(e.Item),
			view.IsOwn(e.Item.Owner),
			view.CanOffer(e.Item),
			view.CanClaim(e.Item),
			title,
		)
	}
	return w.Flush()
}

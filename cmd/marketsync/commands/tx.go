package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"market-sync/internal/domain"
	"market-sync/internal/ledger"
)

func publishCmd() *cobra.Command {
	var (
		file    string
		hash    string
		initial string
		ceiling string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a new item from a JSON content record or an existing hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (hash == "") {
				return errors.New("exactly one of --file or --hash is required")
			}
			initialValue, err := parseAmount("initial", initial)
			if err != nil {
				return err
			}
			maxValue, err := parseAmount("max", ceiling)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// Pick up the current fee before paying it.
			fee, err := a.gateway.PublicationCost(cmd.Context())
			if err != nil {
				return err
			}

			var receipt ledger.TxReceipt
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read content record: %w", err)
				}
				if !json.Valid(data) {
					return fmt.Errorf("%s is not a JSON document", file)
				}
				receipt, err = a.gateway.PublishItemContent(cmd.Context(), a.identity, json.RawMessage(data), initialValue, maxValue)
				if err != nil {
					return err
				}
			} else {
				receipt, err = a.gateway.PublishItem(cmd.Context(), a.identity, hash, initialValue, maxValue)
				if err != nil {
					return err
				}
			}
			printReceipt(cmd, "publish", receipt, fee)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON content record to store and publish")
	cmd.Flags().StringVar(&hash, "hash", "", "already stored content hash")
	cmd.Flags().StringVar(&initial, "initial", "", "initial value")
	cmd.Flags().StringVar(&ceiling, "max", "", "maximum value")
	return cmd
}

func offerCmd() *cobra.Command {
	var (
		item  int64
		value string
		ceiling string
	)
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Bid on an item, escrowing the maximum value",
		RunE: func(cmd *cobra.Command, args []string) error {
			offerValue, err := parseAmount("value", value)
			if err != nil {
				return err
			}
			maxValue, err := parseAmount("max", ceiling)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.gateway.OfferItem(cmd.Context(), a.identity, domain.ItemID(item), offerValue, maxValue)
			if err != nil {
				return err
			}
			printReceipt(cmd, "offer", receipt, maxValue)
			return nil
		},
	}
	cmd.Flags().Int64Var(&item, "item", 0, "item id")
	cmd.Flags().StringVar(&value, "value", "", "offer value")
	cmd.Flags().StringVar(&ceiling, "max", "", "upper bound attached as payment")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func claimCmd() *cobra.Command {
	var item int64
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the funds of a finished item",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.gateway.ClaimFunds(cmd.Context(), a.identity, domain.ItemID(item))
			if err != nil {
				return err
			}
			printReceipt(cmd, "claim", receipt, decimal.Zero)
			return nil
		},
	}
	cmd.Flags().Int64Var(&item, "item", 0, "item id")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func transferOwnershipCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "transfer-ownership",
		Short: "Hand marketplace ownership to another address",
		RunE: func(cmd *cobra.Command, args []string) error {
			newOwner, err := domain.ParseAddress(to)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.gateway.TransferOwnership(cmd.Context(), a.identity, newOwner)
			if err != nil {
				return err
			}
			printReceipt(cmd, "transfer-ownership", receipt, decimal.Zero)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "new owner address")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func setCostCmd() *cobra.Command {
	var cost string
	cmd := &cobra.Command{
		Use:   "set-cost",
		Short: "Change the publication fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			newCost, err := parseAmount("cost", cost)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.gateway.SetPublicationCost(cmd.Context(), a.identity, newCost)
			if err != nil {
				return err
			}
			printReceipt(cmd, "set-cost", receipt, decimal.Zero)
			return nil
		},
	}
	cmd.Flags().StringVar(&cost, "cost", "", "new publication fee")
	_ = cmd.MarkFlagRequired("cost")
	return cmd
}

func ownerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner",
		Short: "Print the marketplace owner and publication fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			owner, err := a.gateway.Owner(cmd.Context())
			if err != nil {
				return err
			}
			fee, err := a.gateway.PublicationCost(cmd.Context())
			if err != nil {
				return err
			}
			count, err := a.gateway.ItemsCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner:            %s\npublication cost: %s\nitems:            %d\n",
				owner.Checksum(), fee, count)
			return nil
		},
	}
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return d, nil
}

// printReceipt reports a submitted write. The effect becomes visible only
// once the corresponding ledger event is observed.
func printReceipt(cmd *cobra.Command, op string, receipt ledger.TxReceipt, paid decimal.Decimal) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s submitted: tx=%s from=%s paid=%s\n",
		op, receipt.Hash, receipt.From.Checksum(), paid)
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/shopify-source/pkg/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show saved cursors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := state.Open(ctx, cfg.State.DSN)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer store.Close()

		entries, err := store.List(ctx, a.source.Shop())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RESOURCE\tKIND\tCURSOR\tBOUNDARY KEYS\tLOAD ID\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Key.Resource, e.Entry.Kind, e.Entry.Value,
				strings.Join(e.Entry.BoundaryKeys, ","), e.Entry.LoadID,
				e.Entry.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset [resource...]",
	Short: "Delete saved cursors so the next run starts from the start date",
	Long: `Deletes the saved cursors of the named resources, or of every resource
when none is named.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.source.Select(args...); err != nil {
			return err
		}

		store, err := state.Open(ctx, cfg.State.DSN)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer store.Close()

		shop := a.source.Shop()
		names := args
		if len(names) == 0 {
			entries, err := store.List(ctx, shop)
			if err != nil {
				return err
			}
			for _, e := range entries {
				names = append(names, e.Key.Resource)
			}
		}

		for _, name := range names {
			if err := store.Delete(ctx, state.Key{Shop: shop, Resource: name}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", name)
		}
		return nil
	},
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List the resources of the source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSource(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tAPI\tDISPOSITION\tPRIMARY KEY\tCURSOR")
		for _, r := range a.source.Resources() {
			cursor := "-"
			if r.IsIncremental() {
				cursor = fmt.Sprintf("%s (%s)", r.Incremental.Field, r.Incremental.Kind)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.Name, r.API, r.WriteDisposition, strings.Join(r.PrimaryKey, ","), cursor)
		}
		return tw.Flush()
	},
}

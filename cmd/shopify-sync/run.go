package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/shopify-source/pkg/pipeline"
)

var (
	runResources []string
	fullRefresh  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load resources once",
	Long: `Loads the selected resources once and commits their cursors.

Resources that fail do not stop the others; the command exits non-zero when
any resource failed.

Example:
  shopify-sync run -r orders,customers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		shutdown := startMetricsServer(ctx, cfg.Metrics.Addr)
		defer shutdown()

		a, err := openApp(ctx, cfg, fullRefresh)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.runner.Run(ctx, selectedResources()...)
		printResults(cmd.OutOrStdout(), results)
		return err
	},
}

// selectedResources prefers --resources over sync.resources.
func selectedResources() []string {
	if len(runResources) > 0 {
		return runResources
	}
	return cfg.Sync.Resources
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printResults(w io.Writer, results []pipeline.Result) {
	if len(results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tPHASE\tPAGES\tITEMS\tDROPPED\tCURSOR\tCOMMITTED\tERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%t\t%s\n",
			r.Resource, r.Phase, r.Pages, r.Items, r.Dropped, r.Cursor, r.Committed, errText)
	}
	tw.Flush()
}

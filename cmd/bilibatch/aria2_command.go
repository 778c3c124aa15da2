package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/service"
	"github.com/tinoosan/bilibatch/internal/tracker"
)

func newAria2Command(ctx *commandContext) *cobra.Command {
	var flags exportFlags
	var watch bool
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "aria2 <url>",
		Short: "Send every selected item to aria2 over JSON-RPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				flags.format = service.FormatPlaylist
				res, err := ctx.batchService(nil).Export(cmd.Context(), flags.request(args[0]))
				if err != nil {
					return err
				}
				return writeOutput(cmd, "", res.Body)
			}

			cl, err := ctx.aria2Client()
			if err != nil {
				return err
			}
			d := aria2.NewDispatcher(cl, ctx.logger)
			var tr *tracker.Tracker
			if watch {
				tr = tracker.New(ctx.logger, cl)
				d.SetRecorder(tr)
			}

			start := time.Now()
			res, err := ctx.batchService(d).Dispatch(cmd.Context(), flags.request(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: queued %d jobs for %d items\n", res.Extractor, res.Jobs, res.Items)
			if tr == nil {
				return nil
			}

			sum, err := tr.Wait(cmd.Context())
			fmt.Fprintf(out, "%d completed, %d failed, %d stopped, %d pending after %s\n",
				len(sum.Completed), len(sum.Failed), len(sum.Stopped), len(sum.Pending),
				strings.TrimSuffix(humanize.RelTime(start, time.Now(), "", ""), " "))
			for _, name := range sum.Failed {
				fmt.Fprintf(out, "  failed: %s\n", jobName(name))
			}
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the queued downloads until they finish")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the aria2 input file instead of sending it")
	return cmd
}

// jobName undoes the URI component encoding of a job id.
func jobName(id string) string {
	if s, err := url.PathUnescape(id); err == nil {
		return s
	}
	return id
}

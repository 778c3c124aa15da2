package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tinoosan/bilibatch/internal/service"
)

type exportFlags struct {
	quality int
	sel     string
	match   string
	format  string
	output  string
}

func (f *exportFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.quality, "quality", "q", 0, "Requested quality code (qn); 0 uses the configured default")
	cmd.Flags().StringVarP(&f.sel, "select", "s", "", "Items to take, e.g. 1,3-5 (default all)")
	cmd.Flags().StringVarP(&f.match, "match", "m", "", "Only items whose title fuzzily matches")
}

func (f *exportFlags) request(url string) service.Request {
	return service.Request{URL: url, Quality: f.quality, Select: f.sel, Match: f.match, Format: f.format}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "export <url>",
		Short: "Resolve a page into an aria2 input file or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.batchService(nil).Export(cmd.Context(), flags.request(args[0]))
			if err != nil {
				return err
			}
			return writeOutput(cmd, flags.output, res.Body)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&flags.format, "format", "f", service.FormatPlaylist, "Output format: playlist or json")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func writeOutput(cmd *cobra.Command, path, body string) error {
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), body+"\n")
		return err
	}
	if err := os.WriteFile(path, []byte(body+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", path, humanize.Bytes(uint64(len(body)+1)))
	return nil
}

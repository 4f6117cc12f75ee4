package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jscyril/supersonic/api"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <track-id>...",
	Short: "Store tracks for offline playback",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()

		var failed []error
		for _, id := range args {
			bar := progressbar.NewOptions(100,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription(id),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
			rec, err := a.downloads.Download(ctx, api.Track{ID: id, Title: id}, func(percent int) {
				_ = bar.Set(percent)
			})
			_ = bar.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", id, err))
				if ctx.Err() != nil {
					break
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", id, rec.AudioFormat, humanize.IBytes(uint64(rec.Size)))
		}
		return errors.Join(failed...)
	},
}

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Manage offline downloads",
}

var downloadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tracks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.downloads.List()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tFORMAT\tSIZE\tDOWNLOADED")
		for _, d := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.Track.ID, describe(d.Track), d.AudioFormat,
				humanize.IBytes(uint64(d.Size)), humanize.Time(d.DownloadedAt))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d tracks, %s used\n", len(list), humanize.IBytes(uint64(a.downloads.TotalBytes())))
		return nil
	},
}

var downloadsRemoveCmd = &cobra.Command{
	Use:   "remove <track-id>...",
	Short: "Delete stored tracks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.downloads.Remove(cmd.Context(), id); err != nil {
				return err
			}
		}
		return nil
	},
}

var downloadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored track",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.downloads.ClearAll(cmd.Context())
	},
}

func init() {
	downloadsCmd.AddCommand(downloadsListCmd, downloadsRemoveCmd, downloadsClearCmd)
}

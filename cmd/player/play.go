package main

import (
	"fmt"

	"github.com/jscyril/supersonic/api"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var noAutoplay bool

var playCmd = &cobra.Command{
	Use:   "play <track-id>...",
	Short: "Play tracks without the TUI until the queue ends",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if noAutoplay {
			a.cfg.Settings.AutoPlay = false
		}
		if err := a.startEngine(ctx); err != nil {
			return err
		}
		e := a.engine

		sub := e.Events().Subscribe(api.EventTrackChanged, api.EventStateChange, api.EventError)
		defer sub.Unsubscribe()

		tracks := lo.Map(lo.Uniq(args), func(id string, _ int) api.Track {
			return api.Track{ID: id, Title: id}
		})
		if err := e.PlayFromList(tracks, 0); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.C:
				if !ok {
					return nil
				}
				s := ev.Session
				switch ev.Type {
				case api.EventTrackChanged:
					if s.Track != nil {
						fmt.Fprintf(out, "▶ %s\n", describe(*s.Track))
					}
				case api.EventError:
					fmt.Fprintf(out, "✖ %v, skipping\n", ev.Err)
					if err := e.Next(); err != nil {
						return nil
					}
				case api.EventStateChange:
					if s.State == api.StateEnded && !s.Playing {
						fmt.Fprintln(out, "queue finished")
						return nil
					}
				}
			}
		}
	},
}

func init() {
	playCmd.Flags().BoolVar(&noAutoplay, "no-autoplay", false, "stop when the queue runs out instead of extending it")
}

func describe(t api.Track) string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

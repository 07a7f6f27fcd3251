package cli

import (
	"encoding/json"
	"fmt"
	"io"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"modelbridge/pkg/types"
)

func newWatchCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print engine download and model-list events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			ch, unsubscribe := s.events.SubscribeChan(64)
			defer unsubscribe()
			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-s.done:
					return fmt.Errorf("engine event socket closed")
				case ev := <-ch:
					if err := printEvent(out, ev, asJSON); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per event")
	return cmd
}

func printEvent(w io.Writer, ev types.Event, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}
	if ev.Type == types.EventModelsUpdated {
		_, err := fmt.Fprintf(w, "%-18s\n", ev.Type)
		return err
	}
	_, err := fmt.Fprintf(w, "%-18s %-32s %5.1f%%  %s / %s\n",
		ev.Type, ev.ModelID, ev.Percent*100,
		humanize.IBytes(ev.Size.Transferred), humanize.IBytes(ev.Size.Total))
	return err
}

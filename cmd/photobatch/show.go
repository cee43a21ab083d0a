package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
)

// report is the JSON document printed by show and edit.
type report struct {
	Selected int            `json:"selected"`
	Photos   []*batch.Photo `json:"photos"`
	Values   batch.Values   `json:"values"`
	Missing  []string       `json:"missing,omitempty"`

	// AlbumPicks is the reconciled album list sent by edit.
	AlbumPicks albums.Candidates `json:"album_picks,omitempty"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show IDS...",
		Short: "Load photos and print their aggregated field values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger := commandLogger("show")
			s, err := openSession(ctx, configFrom(cmd), logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.editor.Load(ctx, args); err != nil {
				return err
			}

			return writeReport(cmd, newReport(s.editor))
		},
	}
}

func newReport(editor *batch.Editor) report {
	r := report{
		Selected: editor.CountSelected(),
		Photos:   editor.Models(),
		Values:   editor.Values(),
	}
	for _, entry := range editor.Selection() {
		if editor.Model(entry.ID) == nil {
			r.Missing = append(r.Missing, entry.ID)
		}
	}
	return r
}

func writeReport(cmd *cobra.Command, r report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/photo-batch-client/pkg/activity"
	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
)

type editOptions struct {
	title       string
	favorite    bool
	noFavorite  bool
	albums      []string
	albumAction string
}

func newEditCmd() *cobra.Command {
	opts := &editOptions{}

	cmd := &cobra.Command{
		Use:   "edit IDS...",
		Short: "Apply one edit to all given photos",
		Long: `Load the given photos, apply the requested changes to all of them in a single
save, and wait until the client's network activity has settled.

Album names are matched against the service's album catalog; names that do
not exist yet are created by the service on save.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.title, "title", "", "New title for all photos")
	flags.BoolVar(&opts.favorite, "favorite", false, "Mark all photos as favorite")
	flags.BoolVar(&opts.noFavorite, "no-favorite", false, "Unmark all photos as favorite")
	flags.StringSliceVar(&opts.albums, "album", nil, "Album title to add or remove (repeatable)")
	flags.StringVar(&opts.albumAction, "album-action", string(batch.ActionAdd), "What to do with --album: add or remove")
	cmd.MarkFlagsMutuallyExclusive("favorite", "no-favorite")

	return cmd
}

func runEdit(cmd *cobra.Command, ids []string, opts *editOptions) error {
	action := batch.Action(opts.albumAction)
	if action != batch.ActionAdd && action != batch.ActionRemove {
		return fmt.Errorf("%w: --album-action must be add or remove (got %q)", batch.ErrInvalidAction, opts.albumAction)
	}

	values, err := opts.values(cmd)
	if err != nil {
		return err
	}
	if len(values) == 0 && len(opts.albums) == 0 {
		return errors.New("nothing to change: use --title, --favorite, --no-favorite or --album")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger := commandLogger("edit")
	s, err := openSession(ctx, configFrom(cmd), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.editor.Load(ctx, ids); err != nil {
		return err
	}

	var picks albums.Candidates
	if len(opts.albums) > 0 {
		pending := make([]albums.Candidate, 0, len(opts.albums))
		for _, title := range opts.albums {
			pending = append(pending, albums.Pending{Text: title})
		}
		result, err := s.editor.SetItems(ctx, batch.FieldAlbums, action, pending)
		if err != nil {
			return err
		}
		picks = result.Processed
		values[batch.FieldAlbums] = batch.FieldAggregate{Action: action, Items: picks}
	}

	if err := s.editor.SaveSelected(ctx, values); err != nil {
		return err
	}

	// pending picks create albums on the service
	if slices.ContainsFunc(picks, isPending) {
		if err := s.catalog.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to invalidate album catalog")
		}
	}

	if err := s.waitIdle(ctx); err != nil {
		if !errors.Is(err, activity.ErrWaitTimeout) {
			return err
		}
		logger.Warn().Err(err).Msg("Network still busy, reporting current state")
	}

	r := newReport(s.editor)
	r.AlbumPicks = picks
	return writeReport(cmd, r)
}

// values builds the single-valued field changes requested on the command line.
func (o *editOptions) values(cmd *cobra.Command) (batch.Values, error) {
	values := batch.Values{}

	if cmd.Flags().Changed("title") {
		agg, err := batch.SetValue(o.title)
		if err != nil {
			return nil, err
		}
		values[batch.FieldTitle] = agg
	}

	if cmd.Flags().Changed("favorite") || cmd.Flags().Changed("no-favorite") {
		agg, err := batch.SetValue(o.favorite && !o.noFavorite)
		if err != nil {
			return nil, err
		}
		values[batch.FieldFavorite] = agg
	}

	return values, nil
}

func isPending(c albums.Candidate) bool {
	_, ok := c.(albums.Pending)
	return ok
}

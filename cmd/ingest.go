package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/output"
	"github.com/joescharf/neotutor/internal/tutors"
)

var ingestVideos int

var ingestCmd = &cobra.Command{
	Use:   "ingest <playlist-url>",
	Short: "Train a new tutor from a YouTube playlist",
	Long: `Train a new tutor from a YouTube playlist.

The backend transcribes up to --videos videos of the playlist and indexes
them. The new tutor becomes the current one for ask and chat.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ingestRun(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestVideos, "videos", tutors.DefaultVideoCount, "Number of playlist videos to ingest")
	rootCmd.AddCommand(ingestCmd)
}

func ingestRun(ctx context.Context, playlistURL string) error {
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would ingest %d videos from %s", ingestVideos, playlistURL)
		return nil
	}
	ts, err := getTutors(ctx)
	if err != nil {
		return err
	}

	ui.Info("Ingesting %d videos from %s (this can take a while)", ingestVideos, playlistURL)
	ch, err := ts.Ingest(ctx, playlistURL, ingestVideos)
	if err != nil {
		return err
	}
	ui.Success("Tutor ready: %s", output.Cyan(ch.Title))
	return nil
}

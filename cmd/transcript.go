package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/output"
)

var transcriptLimit int

var transcriptCmd = &cobra.Command{
	Use:     "transcript",
	Aliases: []string{"tr"},
	Short:   "Manage saved chat transcripts",
}

var transcriptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved transcripts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transcriptListRun(cmd.Context())
	},
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transcriptShowRun(cmd.Context(), args[0])
	},
}

var transcriptDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transcriptDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	transcriptListCmd.Flags().IntVar(&transcriptLimit, "limit", 20, "Maximum transcripts to list")
	transcriptCmd.AddCommand(transcriptListCmd)
	transcriptCmd.AddCommand(transcriptShowCmd)
	transcriptCmd.AddCommand(transcriptDeleteCmd)
	rootCmd.AddCommand(transcriptCmd)
}

func transcriptListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	list, err := s.ListTranscripts(ctx, transcriptLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.Info("No saved transcripts")
		return nil
	}

	table := ui.Table([]string{"ID", "Tutor", "Messages", "Updated"})
	for _, t := range list {
		table.Append([]string{
			t.ID,
			t.Channel,
			strconv.Itoa(t.MessageCount),
			t.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func transcriptShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	t, err := s.GetTranscript(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := s.ListMessages(ctx, t.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n\n", output.Bold(t.Channel), t.CreatedAt.Local().Format("2006-01-02 15:04"))
	for _, m := range msgs {
		ui.Message(*m, t.Channel)
	}
	return nil
}

func transcriptDeleteRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete transcript %s", id)
		return nil
	}
	if err := s.DeleteTranscript(ctx, id); err != nil {
		return err
	}
	ui.Success("Deleted transcript %s", id)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/conversation"
	"github.com/joescharf/neotutor/internal/models"
)

var (
	askTranscript string
	askSave       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the current tutor one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return askRun(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askTranscript, "transcript", "", "Append the exchange to this saved transcript")
	askCmd.Flags().BoolVar(&askSave, "save", false, "Save the exchange as a new transcript")
	rootCmd.AddCommand(askCmd)
}

func askRun(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question is blank")
	}
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	client, err := getClient(ctx)
	if err != nil {
		return err
	}
	ts, err := getTutors(ctx)
	if err != nil {
		return err
	}
	channel := ts.CurrentChannel(ctx).Name

	opts := []conversation.Option{conversation.WithLogger(logger)}
	rec, err := askRecorder(ctx, channel)
	if err != nil {
		return err
	}
	if rec != nil {
		opts = append(opts, conversation.WithRecorder(*rec))
	}

	eng := conversation.New(client, opts...)
	out, err := eng.Submit(ctx, question)
	if err != nil {
		return err
	}
	if out.Err != nil {
		ui.Error("Something went wrong. Please try again.")
		return fmt.Errorf("tutor query failed: %w", out.Err)
	}

	ui.Message(*out.Reply, channel)
	if rec != nil {
		ui.VerboseLog("Saved to transcript %s", rec.TranscriptID)
	}
	return nil
}

// askRecorder resolves --transcript/--save to a recorder for one stored
// transcript, creating the transcript when --save is set. It returns nil when
// neither flag is given.
func askRecorder(ctx context.Context, channel string) (*conversation.TranscriptRecorder, error) {
	if askTranscript == "" && !askSave {
		return nil, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	if askTranscript != "" {
		t, err := s.GetTranscript(ctx, askTranscript)
		if err != nil {
			return nil, fmt.Errorf("transcript %s: %w", askTranscript, err)
		}
		return &conversation.TranscriptRecorder{Store: s, TranscriptID: t.ID}, nil
	}
	t := &models.Transcript{Channel: channel}
	if err := s.CreateTranscript(ctx, t); err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	return &conversation.TranscriptRecorder{Store: s, TranscriptID: t.ID}, nil
}

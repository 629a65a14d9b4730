package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/neotutor/internal/chatui"
	"github.com/joescharf/neotutor/internal/conversation"
	"github.com/joescharf/neotutor/internal/models"
	"github.com/joescharf/neotutor/internal/output"
)

var chatResume string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat with the current tutor",
	Long: `Open an interactive chat with the current tutor.

Every message is saved to a transcript. Use --resume to continue a
saved transcript; 'neotutor transcript list' shows their ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chatRun(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Continue the transcript with this id")
	rootCmd.AddCommand(chatCmd)
}

func chatRun(ctx context.Context) error {
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
	s, err := getStore()
	if err != nil {
		return err
	}

	channel := ts.CurrentChannel(ctx).Name
	transcript, history, err := openTranscript(ctx, channel)
	if err != nil {
		return err
	}

	// The terminal belongs to the chat view; logs go to a file instead.
	stateDir := viper.GetString("state_dir")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logPath := filepath.Join(stateDir, "chat.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}
	defer logFile.Close()
	chatLogger := newLogger(logFile, viper.GetString("log.level"), viper.GetString("log.format")).
		With(slog.String("transcript", transcript.ID))

	eng := conversation.New(client,
		conversation.WithLogger(chatLogger),
		conversation.WithHistory(history),
		conversation.WithReplyDelay(viper.GetDuration("chat.reply_delay")),
		conversation.WithRecorder(conversation.TranscriptRecorder{Store: s, TranscriptID: transcript.ID}),
	)

	style := ui.Style
	format := func(m models.Message) string {
		view := output.UI{Style: style}
		return view.FormatMessage(m, channel)
	}

	model := chatui.NewModel(ctx, eng, channel, format)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat: %w", err)
	}

	ui.Info("Transcript saved: %s (%d messages)", transcript.ID, eng.Len())
	return nil
}

// openTranscript creates a new transcript, or loads the one named by --resume.
func openTranscript(ctx context.Context, channel string) (*models.Transcript, []models.Message, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	if chatResume == "" {
		t := &models.Transcript{Channel: channel}
		if err := s.CreateTranscript(ctx, t); err != nil {
			return nil, nil, fmt.Errorf("create transcript: %w", err)
		}
		return t, nil, nil
	}

	t, err := s.GetTranscript(ctx, chatResume)
	if err != nil {
		return nil, nil, fmt.Errorf("transcript %s: %w", chatResume, err)
	}
	stored, err := s.ListMessages(ctx, t.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load transcript: %w", err)
	}
	history := make([]models.Message, len(stored))
	for i, m := range stored {
		history[i] = *m
	}
	return t, history, nil
}

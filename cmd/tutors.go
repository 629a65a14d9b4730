package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/output"
)

var tutorsCmd = &cobra.Command{
	Use:   "tutors",
	Short: "List and switch between trained tutors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tutorsListRun(cmd.Context())
	},
}

var tutorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List previously trained tutors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tutorsListRun(cmd.Context())
	},
}

var tutorsUseCmd = &cobra.Command{
	Use:   "use <instance-id>",
	Short: "Make a previously trained tutor the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tutorsUseRun(cmd.Context(), args[0])
	},
}

var tutorsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current tutor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tutorsCurrentRun(cmd.Context())
	},
}

func init() {
	tutorsCmd.AddCommand(tutorsListCmd)
	tutorsCmd.AddCommand(tutorsUseCmd)
	tutorsCmd.AddCommand(tutorsCurrentCmd)
	rootCmd.AddCommand(tutorsCmd)
}

func tutorsListRun(ctx context.Context) error {
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	ts, err := getTutors(ctx)
	if err != nil {
		return err
	}
	h, err := ts.History(ctx)
	if err != nil {
		return err
	}
	if h.Stale {
		ui.Warning("Backend unreachable; showing the last known list")
	}
	if len(h.Items) == 0 {
		ui.Info("No tutors yet. Train one with 'neotutor ingest <playlist-url>'.")
		return nil
	}

	current := ts.CurrentChannel(ctx).InstanceID
	table := ui.Table([]string{"", "Instance", "Channel", "Last trained on", "Views", "Date"})
	for _, item := range h.Items {
		marker := ""
		if item.InstanceID != "" && item.InstanceID == current {
			marker = output.Green("*")
		}
		d := item.ChannelData
		table.Append([]string{
			marker,
			item.InstanceID,
			d.ChannelName,
			d.Title,
			strconv.FormatInt(d.ViewCount, 10),
			d.Date,
		})
	}
	return table.Render()
}

func tutorsUseRun(ctx context.Context, instanceID string) error {
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	ts, err := getTutors(ctx)
	if err != nil {
		return err
	}
	cur, err := ts.Use(ctx, instanceID)
	if err != nil {
		return err
	}
	ui.Success("Now talking to %s", output.Cyan(cur.Name))
	return nil
}

func tutorsCurrentRun(ctx context.Context) error {
	ts, err := getTutors(ctx)
	if err != nil {
		return err
	}
	cur := ts.CurrentChannel(ctx)
	fmt.Fprintf(ui.Out, "%s\n", output.Bold(cur.Name))
	if cur.LogoURL != "" {
		fmt.Fprintf(ui.Out, "  logo:     %s\n", cur.LogoURL)
	}
	if cur.InstanceID != "" {
		fmt.Fprintf(ui.Out, "  instance: %s\n", cur.InstanceID)
	}
	return nil
}

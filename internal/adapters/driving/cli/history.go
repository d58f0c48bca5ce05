package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyThreadID string
	historyLimit    int
	historyJSON     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the messages of a conversation thread",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyThreadID, "thread", "t", "", "thread id (required)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of messages (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output messages as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyThreadID == "" {
		return errors.New("--thread is required")
	}

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	messages, err := rt.Conversation.GetHistory(cmd.Context(), historyThreadID, historyLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		data, err := json.MarshalIndent(messages, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding history: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(messages) == 0 {
		fmt.Fprintln(out, "No messages found.")
		return nil
	}

	styles := stylesFor(out)
	for _, m := range messages {
		stamp := m.Timestamp.Local().Format("2006-01-02 15:04")
		fmt.Fprintf(out, "%s %s\n", styles.Status.Render(stamp), styles.Label.Render(string(m.Role)+":"))
		fmt.Fprintln(out, styles.Assistant.Render(m.Content))
		if m.Metadata != nil && len(m.Metadata.Sources) > 0 {
			for _, src := range m.Metadata.Sources {
				fmt.Fprintln(out, styles.Source.Render("  - "+src))
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

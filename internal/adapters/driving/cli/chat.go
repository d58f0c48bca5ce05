package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

var chatThreadID string

// maxInputLine bounds one line read from stdin.
const maxInputLine = 1 << 20

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Each line you type is one turn.
Pass --thread to resume an earlier conversation. Type /quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThreadID, "thread", "t", "", "thread id to resume (default: new thread)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	threadID := chatThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	out := cmd.OutOrStdout()
	styles := stylesFor(out)
	interactive := isTerminal(cmd.InOrStdin())

	fmt.Fprintln(out, styles.Status.Render(fmt.Sprintf("thread %s (type /quit to leave)", threadID)))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)
	for {
		if interactive {
			fmt.Fprint(out, styles.Prompt.Render("you> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		result, err := rt.Conversation.ProcessMessage(cmd.Context(), threadID, line)
		if err != nil {
			return fmt.Errorf("processing message: %w", err)
		}
		renderTurn(out, styles, result)

		if result.Phase == domain.PhaseEnding {
			return nil
		}
	}
	return scanner.Err()
}

// renderTurn writes the reply followed by its sources, suggestions and status.
func renderTurn(w io.Writer, styles *Styles, result *domain.TurnResult) {
	fmt.Fprintln(w, styles.Assistant.Render(result.Response))

	if len(result.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.Label.Render("Sources:"))
		for _, src := range result.Sources {
			fmt.Fprintln(w, styles.Source.Render("  - "+src))
		}
	}

	if len(result.Suggestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styles.Label.Render("You could ask:"))
		for i, s := range result.Suggestions {
			fmt.Fprintln(w, styles.Suggestion.Render(fmt.Sprintf("  %d. %s", i+1, s)))
		}
	}

	status := fmt.Sprintf("[turn %d, %s]", result.TurnCount, result.Phase)
	if result.HasErrors {
		status += " " + styles.Error.Render("(degraded)")
	}
	fmt.Fprintln(w, styles.Status.Render(status))
	fmt.Fprintln(w)
}

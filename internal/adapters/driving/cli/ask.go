package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	askThreadID string
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the reply",
	Long: `Run a single conversation turn and print the reply.
Pass the same --thread on later calls to continue the conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askThreadID, "thread", "t", "", "thread id (default: new thread)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the turn result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	threadID := askThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	question := strings.Join(args, " ")
	result, err := rt.Conversation.ProcessMessage(cmd.Context(), threadID, question)
	if err != nil {
		return fmt.Errorf("processing message: %w", err)
	}

	out := cmd.OutOrStdout()
	if askJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	styles := stylesFor(out)
	if askThreadID == "" {
		fmt.Fprintln(out, styles.Status.Render("thread "+threadID))
	}
	renderTurn(out, styles, result)
	return nil
}

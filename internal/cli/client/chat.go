package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Turn is one conversation turn from the API.
type Turn struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Seq        int64      `json:"seq"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Citations  []Citation `json:"citations"`
	CreatedAt  string     `json:"created_at"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var k int
	var timeoutMS int

	cmd := &cobra.Command{
		Use:   "ask <document_id> <question>",
		Short: "Ask a question about a document",
		Long:  "Asks a question grounded in the document's content and prints the cited answer.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd, args[0], args[1], k, timeoutMS, outputJSON)
		},
	}

	cmd.Flags().IntVar(&k, "k", 0, "Number of passages to retrieve (default: server-side)")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 0, "Generation deadline in milliseconds (default: server-side)")

	return cmd
}

func runAsk(cmd *cobra.Command, documentID, question string, k, timeoutMS int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	body := map[string]any{"question": question}
	if k > 0 {
		body["k"] = k
	}
	if timeoutMS > 0 {
		body["timeout_ms"] = timeoutMS
	}

	resp, err := api.Post("/documents/"+documentID+"/ask", body)
	if err != nil {
		// Insufficient-context refusals still record a turn; show it
		// instead of treating the call as a hard failure.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "NO_RELEVANT_CONTEXT" && len(apiErr.Data) > 0 {
			var turn Turn
			if jsonErr := json.Unmarshal(apiErr.Data, &turn); jsonErr == nil {
				printTurn(&turn, outputJSON)
				return nil
			}
		}
		return fmt.Errorf("ask failed: %w", err)
	}

	var turn Turn
	if err := json.Unmarshal(resp.Data, &turn); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	printTurn(&turn, outputJSON)
	return nil
}

func printTurn(turn *Turn, outputJSON bool) {
	if outputJSON {
		output, _ := json.MarshalIndent(turn, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Println(turn.Content)
	if len(turn.Citations) > 0 {
		cites := make([]string, len(turn.Citations))
		for i, c := range turn.Citations {
			cites[i] = c.String()
		}
		fmt.Printf("\nSources: %s\n", strings.Join(cites, ", "))
	}
}

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	var cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "history <document_id>",
		Short: "Show a document's conversation history",
		Long:  "Lists the document's conversation turns oldest first, with cursor pagination.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runHistory(cmd, args[0], cursor, limit, outputJSON)
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of turns to return")

	return cmd
}

func runHistory(cmd *cobra.Command, documentID, cursor string, limit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/documents/%s/history?limit=%d", documentID, limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	var history struct {
		Items   []Turn `json:"items"`
		Cursor  string `json:"cursor,omitempty"`
		HasMore bool   `json:"has_more"`
	}
	if err := json.Unmarshal(resp.Data, &history); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(history, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(history.Items) == 0 {
		fmt.Println("No conversation turns")
		return nil
	}

	for _, turn := range history.Items {
		fmt.Printf("[%d] %s: %s\n", turn.Seq, turn.Role, turn.Content)
	}
	if history.HasMore {
		fmt.Printf("\nMore available: --cursor %s\n", history.Cursor)
	}
	return nil
}

package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Citation is a page range attached to a retrieved chunk or generated content.
type Citation struct {
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`
}

func (c Citation) String() string {
	if c.PageStart == c.PageEnd {
		return fmt.Sprintf("p.%d", c.PageStart)
	}
	return fmt.Sprintf("pp.%d-%d", c.PageStart, c.PageEnd)
}

// SearchResult is one retrieved chunk from the search endpoint.
type SearchResult struct {
	ChunkID  string   `json:"chunk_id"`
	SeqIndex int      `json:"seq_index"`
	Text     string   `json:"text"`
	Score    float32  `json:"score"`
	Citation Citation `json:"citation"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <document_id> <query>",
		Short: "Search a document's indexed chunks",
		Long:  "Runs semantic retrieval over a single indexed document and prints the matching passages.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(cmd, args[0], args[1], k, outputJSON)
		},
	}

	cmd.Flags().IntVar(&k, "k", 5, "Number of results to return")

	return cmd
}

func runSearch(cmd *cobra.Command, documentID, query string, k int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/documents/"+documentID+"/search", map[string]any{
		"query": query,
		"k":     k,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var result struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(result.Results) == 0 {
		fmt.Println("No results")
		return nil
	}

	for i, r := range result.Results {
		fmt.Printf("%d. [%s] score=%.3f\n%s\n\n", i+1, r.Citation, r.Score, r.Text)
	}
	return nil
}

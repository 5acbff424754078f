package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Artifact is a generated study artifact from the API.
type Artifact struct {
	ID             string          `json:"id"`
	DocumentID     string          `json:"document_id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Citations      []Citation      `json:"citations"`
	SourceChunkIDs []string        `json:"source_chunk_ids"`
	CreatedAt      string          `json:"created_at"`
}

type artifactList struct {
	Items []Artifact `json:"items"`
}

// NotesCmd creates the notes command.
func NotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes <document_id>",
		Short: "Generate topic notes for a document",
		Long:  "Generates structured notes for each topic segment of an indexed document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runNotes(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runNotes(cmd *cobra.Command, documentID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/documents/"+documentID+"/notes", nil)
	if err != nil {
		return fmt.Errorf("failed to generate notes: %w", err)
	}

	var list artifactList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse notes: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printArtifacts(list.Items)
	return nil
}

// QuizCmd creates the quiz command.
func QuizCmd() *cobra.Command {
	var segment int
	var count int

	cmd := &cobra.Command{
		Use:   "quiz <document_id>",
		Short: "Generate quiz questions for a document segment",
		Long:  "Generates multiple-choice and short-answer questions grounded in one topic segment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runQuiz(cmd, args[0], segment, count, outputJSON)
		},
	}

	cmd.Flags().IntVar(&segment, "segment", 0, "Topic segment index to quiz on")
	cmd.Flags().IntVar(&count, "count", 0, "Number of questions (default: server-side)")

	return cmd
}

func runQuiz(cmd *cobra.Command, documentID string, segment, count int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	body := map[string]any{"segment": segment}
	if count > 0 {
		body["count"] = count
	}

	resp, err := api.Post("/documents/"+documentID+"/quiz", body)
	if err != nil {
		return fmt.Errorf("failed to generate quiz: %w", err)
	}

	var list artifactList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse quiz: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printArtifacts(list.Items)
	return nil
}

// ArtifactsCmd creates the artifacts command.
func ArtifactsCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "artifacts <document_id>",
		Short: "List a document's study artifacts",
		Long:  "Lists previously generated notes and quiz questions, optionally filtered by kind.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runArtifacts(cmd, args[0], kind, outputJSON)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (note, quiz_mcq, quiz_short)")

	return cmd
}

func runArtifacts(cmd *cobra.Command, documentID, kind string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := "/documents/" + documentID + "/artifacts"
	if kind != "" {
		path += "?kind=" + kind
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	var list artifactList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse artifacts: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No artifacts")
		return nil
	}

	printArtifacts(list.Items)
	return nil
}

func printArtifacts(artifacts []Artifact) {
	for _, a := range artifacts {
		fmt.Printf("%s  %-10s %s\n", a.ID, a.Kind, formatCitations(a.Citations))
		fmt.Printf("%s\n\n", formatPayload(a.Kind, a.Payload))
	}
}

func formatCitations(citations []Citation) string {
	if len(citations) == 0 {
		return ""
	}
	s := citations[0].String()
	for _, c := range citations[1:] {
		s += ", " + c.String()
	}
	return s
}

func formatPayload(kind string, payload json.RawMessage) string {
	switch kind {
	case "note":
		var note struct {
			Topic     string   `json:"topic"`
			Summary   string   `json:"summary"`
			KeyPoints []string `json:"key_points"`
		}
		if err := json.Unmarshal(payload, &note); err == nil {
			s := fmt.Sprintf("  %s: %s", note.Topic, note.Summary)
			for _, p := range note.KeyPoints {
				s += "\n    - " + p
			}
			return s
		}
	case "quiz_mcq":
		var q struct {
			Question     string   `json:"question"`
			Options      []string `json:"options"`
			CorrectIndex int      `json:"correct_index"`
		}
		if err := json.Unmarshal(payload, &q); err == nil {
			s := "  " + q.Question
			for i, opt := range q.Options {
				marker := " "
				if i == q.CorrectIndex {
					marker = "*"
				}
				s += fmt.Sprintf("\n   %s %c) %s", marker, 'a'+i, opt)
			}
			return s
		}
	case "quiz_short":
		var q struct {
			Question     string `json:"question"`
			SampleAnswer string `json:"sample_answer"`
		}
		if err := json.Unmarshal(payload, &q); err == nil {
			return fmt.Sprintf("  %s\n    answer: %s", q.Question, q.SampleAnswer)
		}
	}
	return "  " + string(payload)
}

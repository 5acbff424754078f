package client

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Document represents a document from the API.
type Document struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	ByteSize       int64  `json:"byte_size"`
	PageCount      int    `json:"page_count"`
	Status         string `json:"status"`
	Failure        string `json:"failure,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	IndexedAt      string `json:"indexed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// DocumentList represents a paginated document listing from the API.
type DocumentList struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF document",
		Long:  "Uploads a PDF, extracts its text, and queues it for indexing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runUpload(cmd *cobra.Command, filePath string, outputJSON bool) error {
	if !strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		return fmt.Errorf("only PDF files are supported")
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.PostFile("/documents", filePath)
	if err != nil {
		return fmt.Errorf("failed to upload document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Uploaded %s (id: %s)\n", doc.Filename, doc.ID)
	fmt.Printf("Status: %s, pages: %d\n", doc.Status, doc.PageCount)
	if doc.Status == "extracted" {
		fmt.Println("Indexing queued; retrieval becomes available once indexing completes.")
	}
	return nil
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Long:  "Lists documents newest first, with cursor pagination.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runList(cmd, cursor, limit, outputJSON)
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of documents to return")

	return cmd
}

func runList(cmd *cobra.Command, cursor string, limit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/documents?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var list DocumentList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return fmt.Errorf("failed to parse document list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No documents")
		return nil
	}

	for _, doc := range list.Items {
		indexed := " "
		if doc.IndexedAt != "" {
			indexed = "indexed"
		}
		fmt.Printf("%s  %-30s %3dp  %-10s %s\n", doc.ID, doc.Filename, doc.PageCount, doc.Status, indexed)
	}
	if list.HasMore {
		fmt.Printf("\nMore available: --cursor %s\n", list.Cursor)
	}
	return nil
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <document_id>",
		Short:   "Get a document by ID",
		Long:    "Retrieves a document's metadata and processing status.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runGet(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runGet(cmd *cobra.Command, documentID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/documents/" + documentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Filename: %s\n", doc.Filename)
	fmt.Printf("Status: %s\n", doc.Status)
	fmt.Printf("Pages: %d\n", doc.PageCount)
	fmt.Printf("Size: %d bytes\n", doc.ByteSize)
	if doc.Failure != "" {
		fmt.Printf("Failure: %s\n", doc.Failure)
	}
	if doc.IndexedAt != "" {
		fmt.Printf("Indexed: %s (%s)\n", doc.IndexedAt, doc.EmbeddingModel)
	}
	fmt.Printf("Created: %s\n", doc.CreatedAt)
	fmt.Printf("Updated: %s\n", doc.UpdatedAt)
	return nil
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <document_id>",
		Short: "Delete a document",
		Long:  "Deletes a document together with its chunks, conversation, and artifacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0], force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}

func runDelete(cmd *cobra.Command, documentID string, force bool) error {
	if !force {
		fmt.Printf("Delete document %s and all derived data? [y/N] ", documentID)
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Println("Aborted")
			return nil
		}
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	if _, err := api.Delete("/documents/" + documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fmt.Printf("Deleted %s\n", documentID)
	return nil
}

// DownloadCmd creates the download command.
func DownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <document_id>",
		Short: "Download a document's original PDF",
		Long:  "Fetches a presigned URL for the document's stored bytes and downloads them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output-file", "o", "", "Output path (default: <document_id>.pdf)")

	return cmd
}

func runDownload(cmd *cobra.Command, documentID, output string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/documents/" + documentID + "/download")
	if err != nil {
		return fmt.Errorf("failed to get download URL: %w", err)
	}

	var download struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Data, &download); err != nil {
		return fmt.Errorf("failed to parse download response: %w", err)
	}

	if output == "" {
		output = documentID + ".pdf"
	}

	if err := api.DownloadFile(download.URL, output); err != nil {
		return err
	}

	fmt.Printf("Saved to %s\n", output)
	return nil
}

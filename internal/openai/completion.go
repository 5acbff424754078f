package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultCompletionModel is the chat model used for grounded generation
const DefaultCompletionModel = "gpt-4o-mini"

// Message is a single chat message in a completion request.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest contains the parameters for a chat completion call.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
	// JSONMode forces the model to emit a single JSON object, used for
	// structured note and quiz generation.
	JSONMode bool
}

// CompletionResponse contains the result of a chat completion call.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// CompletionClient wraps the OpenAI chat completions API with a pinned model.
type CompletionClient struct {
	client *openai.Client
	model  string
}

// NewCompletionClient creates a new CompletionClient.
func NewCompletionClient(apiKey, model string) *CompletionClient {
	if model == "" {
		model = DefaultCompletionModel
	}
	return &CompletionClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete performs a single chat completion call. The upstream model is
// treated as untrusted and possibly slow; callers own timeout and retry.
func (c *CompletionClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("completion request has no messages")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// Model returns the pinned completion model identifier.
func (c *CompletionClient) Model() string {
	return c.model
}

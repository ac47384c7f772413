package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/toolchat/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't directly expose retry-after headers
// We'll use a default retry after duration for rate limits
const defaultRetryAfter = 20 * time.Second

// OpenAIClient implements the llm.Client interface for OpenAI's API.
type OpenAIClient struct {
	client *openai.Client
	model  string // Default model to use if not specified in request
}

// NewOpenAIClient creates a new OpenAIClient.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
// If model is empty, it will use the default from config or request.
func NewOpenAIClient(apiKey, baseURL, model, organization string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}

	resp, err := FromChatCompletion(chatResp)
	if err != nil {
		return nil, llm.NewProviderError("OpenAI returned an unusable response", err).WithProvider(llm.ProviderOpenAI)
	}
	return resp, nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	openaiMsgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}
		openaiMsgs = append([]openai.ChatCompletionMessage{systemMsg}, openaiMsgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: openaiMsgs,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		// let the model decide when to use tools
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	return chatReq, nil
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.NewStatusError(apiErr.HTTPStatusCode, fmt.Sprintf("OpenAI API error: %s", apiErr.Message), err)
		if llmErr.Type == llm.ErrorTypeRateLimit {
			retryAfter := defaultRetryAfter
			llmErr.RetryAfter = &retryAfter
		}
		return llmErr.WithProvider(llm.ProviderOpenAI)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewStatusError(reqErr.HTTPStatusCode, "OpenAI request failed", err).WithProvider(llm.ProviderOpenAI)
	}

	return llm.NewTransportError("OpenAI request failed", err).WithProvider(llm.ProviderOpenAI)
}

var _ llm.Client = (*OpenAIClient)(nil)

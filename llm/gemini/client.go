package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiClient implements the llm.Client interface for Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string // Default model to use if not specified in request
	logger zerolog.Logger
}

// NewGeminiClient creates a new GeminiClient authenticated with apiKey.
// Extra client options (endpoint overrides, HTTP clients) are passed through.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger zerolog.Logger, opts ...option.ClientOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		model = llm.DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "geminiClient").Logger(),
	}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Synchronous implements llm.Client.Synchronous. The request's final user
// turn is sent through a chat session whose history is every earlier message.
func (c *GeminiClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	model := c.client.GenerativeModel(modelName)
	tools, err := ToGenaiTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("failed to convert tools: %w", err)
	}
	model.Tools = tools
	model.SystemInstruction = SystemInstruction(req)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}

	contents, err := ToContents(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	history, last, err := SplitHistory(contents)
	if err != nil {
		return nil, err
	}

	cs := model.StartChat()
	cs.History = history

	c.logger.Debug().
		Str("model", modelName).
		Int("history", len(history)).
		Int("tools", len(req.Tools)).
		Msg("Sending Gemini chat message")

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, convertGeminiError(err)
	}

	out, err := FromResponse(resp)
	if err != nil {
		return nil, llm.NewProviderError("Gemini returned an unusable response", err).WithProvider(llm.ProviderGemini)
	}
	return out, nil
}

// convertGeminiError maps gRPC status codes from the Gemini transport onto
// llm.Error types.
func convertGeminiError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return llm.NewProviderError("Gemini blocked the request", err).WithProvider(llm.ProviderGemini)
	}

	st, ok := status.FromError(err)
	if !ok {
		return llm.NewTransportError("Gemini request failed", err).WithProvider(llm.ProviderGemini)
	}

	statusCode := http.StatusInternalServerError
	switch st.Code() {
	case codes.ResourceExhausted:
		statusCode = http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		statusCode = http.StatusBadRequest
	case codes.Unauthenticated:
		statusCode = http.StatusUnauthorized
	case codes.PermissionDenied:
		statusCode = http.StatusForbidden
	case codes.NotFound:
		statusCode = http.StatusNotFound
	case codes.DeadlineExceeded:
		statusCode = http.StatusGatewayTimeout
	case codes.Unavailable:
		statusCode = http.StatusServiceUnavailable
	case codes.Canceled:
		return llm.NewTransportError("Gemini request canceled", err).WithProvider(llm.ProviderGemini)
	}
	return llm.NewStatusError(statusCode, "Gemini API error: "+st.Message(), err).WithProvider(llm.ProviderGemini)
}

var _ llm.Client = (*GeminiClient)(nil)

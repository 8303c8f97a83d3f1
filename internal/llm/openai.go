package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mmrzaf/tablegen/internal/generators"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultTimeout = 30 * time.Second

// Client answers completion requests through an OpenAI-compatible chat API.
type Client struct {
	api     *openai.Client
	timeout time.Duration
}

// NewClient builds a client for apiKey. An empty baseURL uses the public
// endpoint.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{api: openai.NewClientWithConfig(cfg), timeout: timeout}
}

func (c *Client) Complete(ctx context.Context, req generators.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      wireTemperature(req.Temperature),
		TopP:             float32(req.TopP),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		PresencePenalty:  float32(req.PresencePenalty),
		MaxTokens:        req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// wireTemperature keeps an explicit zero on the wire: go-openai omits a zero
// temperature and the server would apply its own default.
func wireTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

var _ generators.CompletionClient = (*Client)(nil)

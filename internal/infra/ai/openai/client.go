package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
)

const (
	providerName     = "openai"
	defaultMaxTokens = 2048
	defaultVision    = "gpt-4o-mini"
)

// Options configure a Client. APIKey is required; the rest have defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	TextModel   string
	MaxTokens   int
}

// Client implements ai.VisionClient and ai.TextClient on top of chat completions.
type Client struct {
	*openai.Client
	VisionModel string
	TextModel   string
	MaxTokens   int
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	c := &Client{
		Client:      openai.NewClientWithConfig(cfg),
		VisionModel: opts.VisionModel,
		TextModel:   opts.TextModel,
		MaxTokens:   opts.MaxTokens,
	}
	if c.VisionModel == "" {
		c.VisionModel = defaultVision
	}
	if c.TextModel == "" {
		c.TextModel = c.VisionModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

func (c *Client) ModelName() string { return c.VisionModel }

// DescribeImage sends the prompt and the image inlined as a data URL in one user message.
func (c *Client) DescribeImage(ctx context.Context, prompt string, img ai.Image) (string, error) {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
	return c.complete(ctx, "vision completion", c.VisionModel, msg)
}

// Complete runs a text-only request against the text model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	return c.complete(ctx, "text completion", c.TextModel, msg)
}

func (c *Client) complete(ctx context.Context, op, model string, msg openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: []openai.ChatCompletionMessage{msg},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = c.MaxTokens
	} else {
		req.MaxTokens = c.MaxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", ai.NewProviderError(providerName, op, statusOf(err), err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ai.NewProviderError(providerName, op, 0, ai.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

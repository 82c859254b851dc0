package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-1.5-flash"
)

type Options struct {
	APIKey    string
	Model     string
	TextModel string
	// Endpoint overrides the API host, mainly for tests and proxies.
	Endpoint string
}

// Client implements ai.VisionClient and ai.TextClient with the Gemini API.
type Client struct {
	cl        *genai.Client
	Model     string
	TextModel string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	cl, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c := &Client{cl: cl, Model: strings.TrimSpace(opts.Model), TextModel: strings.TrimSpace(opts.TextModel)}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.TextModel == "" {
		c.TextModel = c.Model
	}
	return c, nil
}

func (c *Client) Close() error { return c.cl.Close() }

func (c *Client) ModelName() string { return c.Model }

func (c *Client) DescribeImage(ctx context.Context, prompt string, img ai.Image) (string, error) {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return c.generate(ctx, "vision generate", c.Model,
		genai.Text(prompt),
		genai.Blob{MIMEType: mime, Data: img.Data},
	)
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, "text generate", c.TextModel, genai.Text(prompt))
}

func (c *Client) generate(ctx context.Context, op, model string, parts ...genai.Part) (string, error) {
	m := c.cl.GenerativeModel(model)
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", ai.NewProviderError(providerName, op, statusOf(err), err)
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", ai.NewProviderError(providerName, op, 0, ai.ErrEmptyResponse)
	}
	return txt, nil
}

// firstText joins the text parts of the first candidate that has any.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

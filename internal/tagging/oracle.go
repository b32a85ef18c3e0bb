// Package tagging assigns AI-suggested tags to newly created ideas in the
// background, under a global usage quota.
package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Oracle suggests tags for an idea. Implementations may be slow and may fail.
type Oracle interface {
	SuggestTags(ctx context.Context, title string, description *string) ([]string, error)
}

// Limiter paces outbound calls per key. *ratelimit.KeyedRateLimiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

const (
	OpenAIDefaultBaseURL = "https://api.openai.com/v1"
	OpenAIDefaultModel   = "gpt-4o-mini"
	openAIHTTPTimeout    = 30 * time.Second

	systemPrompt = "Extract relevant tags for this idea. Provide 3-5 descriptive tags that categorize " +
		"the main topics, technologies, or themes. Each tag should be 1-2 words and under 32 characters."
)

// tagSchema constrains the completion to {"tags": [1..10 strings of 1..32 chars]}.
var tagSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tags": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1, "maxLength": MaxTagLength},
			"minItems": 1,
			"maxItems": MaxTags,
		},
	},
	"required":             []string{"tags"},
	"additionalProperties": false,
}

// OpenAIConfig configures an OpenAI-compatible chat completions oracle.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Limiter    Limiter // keyed by model; nil means unpaced
	HTTPClient *http.Client
}

// OpenAIOracle asks a chat completions endpoint for schema-constrained tags.
type OpenAIOracle struct {
	client  openai.Client
	model   string
	limiter Limiter
}

// NewOpenAIOracle builds an oracle. It fails when no API key is set.
func NewOpenAIOracle(cfg OpenAIConfig) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tagging: api key is required for the openai oracle")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = openAIHTTPTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL + "/"),
		option.WithRequestTimeout(timeout),
		// A failed call releases its quota slot; the job is not retried.
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIOracle{
		client:  openai.NewClient(opts...),
		model:   model,
		limiter: cfg.Limiter,
	}, nil
}

// SuggestTags implements Oracle.
func (o *OpenAIOracle) SuggestTags(ctx context.Context, title string, description *string) ([]string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, o.model); err != nil {
			return nil, fmt.Errorf("tagging: rate limit wait: %w", err)
		}
	}

	desc := ""
	if description != nil {
		desc = *description
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Title: " + title + "\nDescription: " + desc),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "tag_extraction",
					Description: openai.String("Topic tags for a video idea"),
					Schema:      tagSchema,
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("tagging: completion API error (model=%s, status=%d): %w",
				o.model, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("tagging: completion request (model=%s): %w", o.model, err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("tagging: completion returned no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return []string{}, nil
	}
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("tagging: malformed tag payload: %w", err)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out.Tags, nil
}

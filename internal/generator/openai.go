package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// OpenAI calls any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	client   openai.Client
	settings Settings
}

func NewOpenAI(s Settings, timeout time.Duration) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai api key missing")
	}
	if s.Model == "" {
		return nil, errors.New("openai model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAI{client: openai.NewClient(opts...), settings: s}, nil
}

func (o *OpenAI) Name() string { return "openai:" + o.settings.Model }

func (o *OpenAI) Generate(ctx context.Context, text string, sources []domain.Source) (Continuation, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(text, sources)),
		},
		Temperature: openai.Float(o.settings.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}
	if o.settings.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.settings.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Continuation{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Continuation{}, errors.New("openai: empty choices")
	}
	return parseReply(resp.Choices[0].Message.Content)
}

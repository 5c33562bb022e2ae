package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client   *genai.Client
	settings Settings
}

// NewGemini builds the client. timeout bounds every GenerateContent call;
// s.BaseURL points the client at a proxy or a test server.
func NewGemini(ctx context.Context, s Settings, timeout time.Duration) (*Gemini, error) {
	if s.APIKey == "" {
		return nil, errors.New("gemini api key missing")
	}
	if s.Model == "" {
		s.Model = "gemini-2.5-flash"
	}

	httpOpts := genai.HTTPOptions{BaseURL: s.BaseURL}
	if timeout > 0 {
		httpOpts.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      s.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, settings: s}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.settings.Model }

func (g *Gemini) Generate(ctx context.Context, text string, sources []domain.Source) (Continuation, error) {
	temp := float32(g.settings.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}
	if g.settings.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.settings.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildUserPrompt(text, sources), genai.RoleUser),
	}
	res, err := g.client.Models.GenerateContent(ctx, g.settings.Model, contents, cfg)
	if err != nil {
		return Continuation{}, fmt.Errorf("gemini generate content: %w", err)
	}

	out := res.Text()
	if out == "" {
		return Continuation{}, errors.New("gemini returned empty text")
	}
	return parseReply(out)
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiBackend implements Backend with the Google GenAI SDK.
// Target.BaseURL is ignored; Target.Model overrides the configured model.
type GeminiBackend struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ Backend = (*GeminiBackend)(nil)

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiBackend{client: client, model: model, logger: logger.Named("llm.gemini")}, nil
}

// Complete generates a JSON response for the prompt pair.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	model := b.model
	if req.Target.Model != "" {
		model = req.Target.Model
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.User, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}

	b.logger.Debug("completion finished", zap.String("model", model), zap.Int("response_len", len(text)))
	return text, nil
}

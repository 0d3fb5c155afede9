package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/amishk599/jobmatch/internal/model"
)

const defaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the slice of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider calls the Gemini API in JSON mode.
type GeminiProvider struct {
	models    contentGenerator
	modelName string
}

// NewGeminiProvider creates a provider for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultGeminiModel
	}
	return &GeminiProvider{models: client.Models, modelName: modelName}, nil
}

// Complete sends req to Gemini at temperature 0 and returns the JSON reply.
// The schema is spelled out in the prompt since JSON mode does not enforce it.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	prompt := req.Prompt
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema: %w", err)
		}
		prompt += "\n\nRespond with a single JSON object matching this JSON Schema:\n" + string(schema)
	}

	temperature := float32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := p.models.GenerateContent(ctx, p.modelName, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &model.HTTPError{StatusCode: apiErr.Code, Err: err}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			builder.WriteString(part.Text)
		}
		// Only the first candidate is used.
		break
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

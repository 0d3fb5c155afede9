package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// OpenAIGateway calls the OpenAI /v1/embeddings endpoint. It never retries;
// compose it with retry.Embedder where retries are wanted.
type OpenAIGateway struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAIGateway creates a gateway producing vectors of the given dimension.
// The http.Client timeout bounds every call.
func NewOpenAIGateway(baseURL, apiKey, model string, dimensions int, httpClient *http.Client) *OpenAIGateway {
	return &OpenAIGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: httpClient,
	}
}

// Model returns the embedding model identifier.
func (g *OpenAIGateway) Model() string {
	return g.model
}

// Dimensions returns the vector length every successful call produces.
func (g *OpenAIGateway) Dimensions() int {
	return g.dimensions
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding of text. Failures wrap exactly one of
// model.ErrInvalidInput, ErrUnauthorized, ErrRateLimited, ErrUnavailable or
// ErrInvalidResponse.
func (g *OpenAIGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", model.ErrInvalidInput)
	}

	body, err := json.Marshal(embeddingRequest{Model: g.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal embedding request: %w", model.ErrInvalidInput, err)
	}

	url := g.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create embedding request: %w", model.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request: %w", model.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response: %w", model.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, respBytes)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBytes, &embResp); err != nil {
		return nil, fmt.Errorf("%w: parse embedding response: %w", model.ErrInvalidResponse, err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("%w: provider error (%s): %s", model.ErrInvalidResponse, embResp.Error.Type, embResp.Error.Message)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", model.ErrInvalidResponse)
	}

	raw := embResp.Data[0].Embedding
	if len(raw) != g.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", model.ErrInvalidResponse, len(raw), g.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, x := range raw {
		f := float32(x)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", model.ErrInvalidResponse, i)
		}
		vec[i] = f
	}
	return vec, nil
}

// classifyStatus maps a non-200 response onto the gateway error classes.
// The returned error also wraps a *model.HTTPError carrying Retry-After.
func classifyStatus(resp *http.Response, body []byte) error {
	httpErr := &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        errors.New(truncate(string(body), 200)),
	}

	var class error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		class = model.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		class = model.ErrRateLimited
	case resp.StatusCode >= 500:
		class = model.ErrUnavailable
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnprocessableEntity:
		class = model.ErrInvalidInput
	default:
		class = model.ErrInvalidResponse
	}
	return fmt.Errorf("%w: %w", class, httpErr)
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Zero when absent or invalid.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

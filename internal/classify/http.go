package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClassifier calls an external text-classification gateway.
type HTTPClassifier struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHTTPClassifier(endpoint, apiKey, model string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type classifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type classifyResponse struct {
	Sentiment      string `json:"sentiment"`
	RequiresAction bool   `json:"requires_action"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(classifyRequest{Model: c.model, Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, string(body))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	sentiment, err := normalizeSentiment(out.Sentiment)
	if err != nil {
		return Result{}, err
	}
	return Result{Sentiment: sentiment, RequiresAction: out.RequiresAction}, nil
}

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"deepresearch.app/agent/core/config"
)

// ErrPaymentRequired is returned on HTTP 402 so callers can fall back
// without logging it as an outage.
var ErrPaymentRequired = errors.New("embeddings: payment required")

// Provider produces one embedding per input text, order-preserving.
// Implementations must backfill missing indices with zero vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string, task string) ([][]float64, int, error)
}

// Client calls an OpenAI-compatible embeddings endpoint (Jina by default).
type Client struct {
	cfg        config.EmbeddingsConfig
	httpClient *http.Client
}

func NewClient(cfg config.EmbeddingsConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Task       string   `json:"task,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
	Input      []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed returns one vector per input text, in input order. Indices the
// provider skipped come back as zero vectors of the batch's dimension.
func (c *Client) Embed(ctx context.Context, texts []string, task string) ([][]float64, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	body, err := json.Marshal(embedRequest{
		Model:      c.cfg.Model,
		Task:       task,
		Dimensions: c.cfg.Dimensions,
		Input:      texts,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, 0, ErrPaymentRequired
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("embed API error %d: %s", resp.StatusCode, string(payload))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode embed response: %w", err)
	}

	vectors := make([][]float64, len(texts))
	dim := 0
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
			if len(d.Embedding) > dim {
				dim = len(d.Embedding)
			}
		}
	}
	for i, v := range vectors {
		if v == nil {
			vectors[i] = make([]float64, dim)
		}
	}

	slog.DebugContext(ctx, "embeddings computed",
		"texts", len(texts),
		"dimensions", dim,
		"tokens", parsed.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return vectors, parsed.Usage.TotalTokens, nil
}

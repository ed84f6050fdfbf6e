package embedpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VoyageEmbedder calls the Voyage AI embeddings endpoint. It is the
// primary embedder: low-latency, dedicated embedding models.
type VoyageEmbedder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewVoyageEmbedder builds a VoyageEmbedder against the public Voyage API.
func NewVoyageEmbedder(apiKey string) *VoyageEmbedder {
	return &VoyageEmbedder{
		apiKey:  apiKey,
		baseURL: "https://api.voyageai.com/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (v *VoyageEmbedder) Name() string { return "voyage" }

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed calls the Voyage embeddings endpoint for a single text.
func (v *VoyageEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	reqBody := voyageRequest{
		Input:     []string{text},
		Model:     model,
		InputType: "document",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal voyage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build voyage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read voyage response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voyage API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed voyageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse voyage response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("voyage response contained no embedding data")
	}
	return parsed.Data[0].Embedding, nil
}

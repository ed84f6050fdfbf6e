package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CohereRerankProvider calls the Cohere-compatible rerank endpoint. It is
// the production RerankProvider backing the cross-encoder reranker.
type CohereRerankProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewCohereRerankProvider builds a CohereRerankProvider against the public
// Cohere API.
func NewCohereRerankProvider(apiKey string) *CohereRerankProvider {
	return &CohereRerankProvider{
		apiKey:  apiKey,
		baseURL: "https://api.cohere.com/v1",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *CohereRerankProvider) Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error) {
	model := req.Model
	if model == "" {
		model = "rerank-english-v3.0"
	}

	body, err := json.Marshal(cohereRerankRequest{
		Query:     req.Query,
		Documents: req.Documents,
		Model:     model,
		TopN:      req.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cohere rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build cohere rerank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cohere rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cohere rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cohere rerank API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed cohereRerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse cohere rerank response: %w", err)
	}

	results := make([]RerankResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		doc := ""
		if r.Index >= 0 && r.Index < len(req.Documents) {
			doc = req.Documents[r.Index]
		}
		results = append(results, RerankResult{Index: r.Index, Score: r.RelevanceScore, Document: doc})
	}

	return &RerankResponse{Results: results, Model: model}, nil
}

func (c *CohereRerankProvider) GetRerankModels() []string {
	return []string{"rerank-english-v3.0", "rerank-multilingual-v3.0"}
}

func (c *CohereRerankProvider) SupportsReranking() bool { return true }

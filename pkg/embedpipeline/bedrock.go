package embedpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockEmbedder calls AWS Bedrock's Titan embedding model. It can be
// passed to NewPipeline as the fallback embedder; nexus-memoryd does not
// construct one and runs its pipeline with no fallback.
type BedrockEmbedder struct {
	client *bedrockruntime.Client
}

// NewBedrockEmbedder builds a BedrockEmbedder for the given region.
func NewBedrockEmbedder(ctx context.Context, region string) (*BedrockEmbedder, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &BedrockEmbedder{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (b *BedrockEmbedder) Name() string { return "bedrock" }

type titanEmbeddingRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed invokes amazon.titan-embed-text-v2:0, which natively produces
// 1024-dimension embeddings (no dimension adapter needed downstream).
func (b *BedrockEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = "amazon.titan-embed-text-v2:0"
	}

	reqBody, err := json.Marshal(titanEmbeddingRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshal titan request: %w", err)
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke bedrock model: %w", err)
	}

	var parsed titanEmbeddingResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("parse bedrock response: %w", err)
	}
	return parsed.Embedding, nil
}

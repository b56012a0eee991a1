package embedding

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// AzureEmbedder computes vectors through an Azure OpenAI embeddings
// deployment. The deployment's model must support requesting 384 dimensions
// (text-embedding-3 family does).
type AzureEmbedder struct {
	client     *azopenai.Client
	deployment string
	dim        int
}

// NewAzure creates an AzureEmbedder against endpoint using an API key.
func NewAzure(endpoint, apiKey, deployment string, dim int) (*AzureEmbedder, error) {
	if endpoint == "" || apiKey == "" || deployment == "" {
		return nil, fmt.Errorf("azure embedder requires endpoint, api key, and deployment")
	}
	keyCredential := azcore.NewKeyCredential(apiKey)
	client, err := azopenai.NewClientWithKeyCredential(endpoint, keyCredential, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating Azure OpenAI client: %w", err)
	}
	return &AzureEmbedder{client: client, deployment: deployment, dim: dim}, nil
}

func (e *AzureEmbedder) Name() string { return "azure-openai" }

func (e *AzureEmbedder) Dim() int { return e.dim }

// Embed requests one embedding from the deployment.
func (e *AzureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.GetEmbeddings(ctx, azopenai.EmbeddingsOptions{
		Input:          []string{text},
		DeploymentName: to.Ptr(e.deployment),
		Dimensions:     to.Ptr(int32(e.dim)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding received from deployment %s", e.deployment)
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("deployment returned %d dimensions, want %d", len(vec), e.dim)
	}
	return vec, nil
}

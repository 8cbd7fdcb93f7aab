package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// OllamaEmbedder computes embeddings against a local Ollama server. It
// implements playbook.Embedder; every failure surfaces as
// EmbeddingUnavailable so callers degrade to lexical comparison instead
// of failing the merge.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder for the given endpoint and model.
func NewOllamaEmbedder(baseURL, model string, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewOllamaEmbedderFromConfig creates an embedder from the embedding
// configuration section.
func NewOllamaEmbedderFromConfig(cfg config.EmbeddingConfig) *OllamaEmbedder {
	return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Timeout)
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbeddingRequest{
		Model:  o.model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/api/embeddings", o.baseURL),
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "failed to reach embedding provider")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.EmbeddingUnavailable, "embedding request failed"),
			errors.Fields{"status": resp.StatusCode, "body": string(body)},
		)
	}

	var ollamaResp ollamaEmbeddingResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingUnavailable, "failed to unmarshal response")
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, errors.New(errors.EmbeddingUnavailable, "provider returned an empty embedding")
	}

	vector := make([]float32, len(ollamaResp.Embedding))
	for i, v := range ollamaResp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

var _ playbook.Embedder = (*OllamaEmbedder)(nil)

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

// Dimension is the width of every product description embedding.
const Dimension = 384

const maxErrorBody = 512

// Embedder turns text into a fixed-width vector. Implementations must be deterministic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedder calls an embedding service that accepts {"text": "..."} and
// answers {"embedding": [...]}.
type HTTPEmbedder struct {
	url       string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewHTTPEmbedder builds an embedder from config. A configured dimension must
// match Dimension since the vector index is built at that width.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) (*HTTPEmbedder, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("embedding url is required")
	}
	if cfg.Dimension != 0 && cfg.Dimension != Dimension {
		return nil, fmt.Errorf("embedding dimension %d does not match the product vector width %d", cfg.Dimension, Dimension)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPEmbedder{
		url:       cfg.URL,
		dimension: Dimension,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
	}, nil
}

// Embed posts text to the embedding service and validates the vector width.
// Calls are throttled client side so a burst of searches cannot flood the
// embedding service.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if ctxErr := pkgerrors.FromContext(ctx, "embed query"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "embedding rate limit wait")
	}

	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode embedding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := pkgerrors.FromContext(ctx, "embed query"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call embedding service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code := pkgerrors.CodeInternal
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			code = pkgerrors.CodeDependency
		}
		return nil, pkgerrors.New(code, fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode embedding response")
	}
	if len(decoded.Embedding) != e.dimension {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("embedding has %d dimensions, want %d", len(decoded.Embedding), e.dimension))
	}
	return decoded.Embedding, nil
}

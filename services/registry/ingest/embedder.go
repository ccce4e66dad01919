// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/Waymark/services/registry/datatypes"
	"github.com/AleutianAI/Waymark/services/registry/telemetry"
)

const (
	// sidecarTimeout bounds one batch_embed round trip. Large documents
	// produce hundreds of chunks per call, so this is deliberately long.
	sidecarTimeout = 5 * time.Minute

	// defaultEmbedRate is the default request rate against either backend.
	defaultEmbedRate = 8.0

	// defaultOpenAIModel is used when OPENAI_EMBEDDING_MODEL is not set.
	defaultOpenAIModel = "text-embedding-3-small"

	// minMlockKB is the mlock limit below which the API key enclave may
	// fail to allocate locked pages.
	minMlockKB = 64
)

// Embedder turns text into vectors. Both backends sit behind this
// interface so the pipeline and the search gateway never know which one
// is configured.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedChunks embeds texts through e in fixed-size batches. onProgress,
// when non-nil, is called after each batch with the number of texts done.
func EmbedChunks(ctx context.Context, e Embedder, texts []string, batchSize int, onProgress func(done, total int)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
		if onProgress != nil {
			onProgress(end, len(texts))
		}
	}
	return vectors, nil
}

// =============================================================================
// Sidecar Backend
// =============================================================================

// BatchEmbeddingRequest is the wire request for the embedding sidecar.
type BatchEmbeddingRequest struct {
	Texts []string `json:"texts"`
}

// BatchEmbeddingResponse is the wire response from the embedding sidecar.
type BatchEmbeddingResponse struct {
	Id        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Vectors   [][]float32 `json:"vectors"`
	Model     string      `json:"model"`
	Dim       int         `json:"dim"`
}

// SidecarEmbedder calls the embedding sidecar's /batch_embed endpoint.
type SidecarEmbedder struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSidecarEmbedder builds an embedder against the sidecar base URL.
// The base URL may point at /embed; the batch endpoint is derived from it.
func NewSidecarEmbedder(baseURL string, perSec float64, logger *slog.Logger) (*SidecarEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding sidecar URL is required")
	}
	if perSec <= 0 {
		perSec = defaultEmbedRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SidecarEmbedder{
		url:     strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/embed") + "/batch_embed",
		client:  &http.Client{Timeout: sidecarTimeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		logger:  logger.With(slog.String("component", "sidecar_embedder")),
	}, nil
}

// Embed returns the vector for a single text.
func (s *SidecarEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch posts the texts to /batch_embed and returns the vectors.
func (s *SidecarEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", datatypes.ErrEmbeddingFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", datatypes.ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	telemetry.InjectContext(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", datatypes.ErrEmbeddingFailed, s.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", datatypes.ErrEmbeddingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sidecar returned status %d: %s",
			datatypes.ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var batch BatchEmbeddingResponse
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", datatypes.ErrEmbeddingFailed, err)
	}
	if len(batch.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: sidecar returned %d vectors for %d texts",
			datatypes.ErrEmbeddingFailed, len(batch.Vectors), len(texts))
	}
	return batch.Vectors, nil
}

// =============================================================================
// OpenAI Backend
// =============================================================================

var (
	// memguardOnce guards one-time secure memory setup for the process.
	memguardOnce sync.Once
)

// initSecureMemory registers the interrupt purge handler and warns when
// the mlock limit is too small for locked key pages.
func initSecureMemory(logger *slog.Logger) {
	memguardOnce.Do(func() {
		memguard.CatchInterrupt()

		var rlimit unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
			logger.Warn("could not determine mlock limit", slog.Any("error", err))
			return
		}
		if rlimit.Cur == unix.RLIM_INFINITY {
			return
		}
		limitKB := int64(rlimit.Cur / 1024)
		if limitKB < minMlockKB {
			logger.Warn("mlock limit may be too low for secure key storage",
				slog.Int64("current_limit_kb", limitKB),
				slog.Int64("required_kb", minMlockKB))
		}
	})
}

// OpenAIEmbedderConfig configures the OpenAI-compatible backend.
type OpenAIEmbedderConfig struct {
	// APIKey is sealed into an enclave at construction and wiped from the
	// caller's slice.
	APIKey []byte

	// BaseURL overrides the API endpoint, for Azure or compatible servers.
	// Empty uses the go-openai default.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// RatePerSec limits request frequency.
	RatePerSec float64
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API. The key lives
// in a memguard enclave and is only opened for the duration of a request.
type OpenAIEmbedder struct {
	key     *memguard.Enclave
	baseURL string
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIEmbedder seals the API key and builds the embedder.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if len(cfg.APIKey) == 0 {
		return nil, fmt.Errorf("openai embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultEmbedRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	initSecureMemory(logger)

	// NewEnclave wipes cfg.APIKey after sealing it.
	return &OpenAIEmbedder{
		key:     memguard.NewEnclave(cfg.APIKey),
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		logger:  logger.With(slog.String("component", "openai_embedder")),
	}, nil
}

// Embed returns the vector for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch calls CreateEmbeddings with the texts in one request.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	buf, err := o.key.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open key enclave: %v", datatypes.ErrEmbeddingFailed, err)
	}
	config := openai.DefaultConfig(buf.String())
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	client := openai.NewClientWithConfig(config)
	buf.Destroy()

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", datatypes.ErrEmbeddingFailed, o.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			datatypes.ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range",
				datatypes.ErrEmbeddingFailed, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// =============================================================================
// Environment Factory
// =============================================================================

// NewEmbedderFromEnv builds the embedder selected by EMBEDDING_BACKEND.
//
// # Description
//
// "sidecar" (the default) reads EMBEDDING_SERVICE_URL. "openai" reads
// OPENAI_API_KEY, falling back to the /run/secrets/openai_api_key file,
// plus OPENAI_BASE_URL and OPENAI_EMBEDDING_MODEL. Both honor
// EMBEDDING_RATE_LIMIT (requests per second).
func NewEmbedderFromEnv(logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	perSec := defaultEmbedRate
	if v := os.Getenv("EMBEDDING_RATE_LIMIT"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid EMBEDDING_RATE_LIMIT %q", v)
		}
		perSec = parsed
	}

	backend := os.Getenv("EMBEDDING_BACKEND")
	switch backend {
	case "", "sidecar":
		url := os.Getenv("EMBEDDING_SERVICE_URL")
		if url == "" {
			return nil, fmt.Errorf("EMBEDDING_SERVICE_URL not set")
		}
		logger.Info("using sidecar embedding backend", slog.String("url", url))
		return NewSidecarEmbedder(url, perSec, logger)

	case "openai":
		key := []byte(os.Getenv("OPENAI_API_KEY"))
		if len(key) == 0 {
			secretPath := "/run/secrets/openai_api_key"
			raw, err := os.ReadFile(secretPath)
			if err != nil {
				return nil, fmt.Errorf("OPENAI_API_KEY not set and secret not found at %s", secretPath)
			}
			key = bytes.TrimSpace(raw)
			logger.Info("read OpenAI API key from secrets file")
		}
		model := os.Getenv("OPENAI_EMBEDDING_MODEL")
		logger.Info("using openai embedding backend",
			slog.String("model", cmp.Or(model, defaultOpenAIModel)))
		return NewOpenAIEmbedder(OpenAIEmbedderConfig{
			APIKey:     key,
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			Model:      model,
			RatePerSec: perSec,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown EMBEDDING_BACKEND %q", backend)
	}
}

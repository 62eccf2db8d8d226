package integration

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dshills/scriptcontext-mcp/internal/embedder"
)

// mockDimension keeps test vectors small and the topic axes readable.
const mockDimension = 8

// Topic keywords mapped to vector axes. Texts sharing a topic land near
// each other, which lets semantic tests assert real ranking behavior
// instead of hash coincidences.
var topicAxes = map[string]int{
	"espresso":  0,
	"coffee":    0,
	"barista":   0,
	"train":     1,
	"platform":  1,
	"midnight":  1,
	"harbor":    2,
	"warehouse": 2,
	"crates":    2,
	"smuggling": 2,
	"shipments": 2,
}

// MockEmbedder generates deterministic vectors without a provider. Texts
// containing a known topic keyword get that topic's axis; everything
// else falls back to a hash-derived vector.
type MockEmbedder struct {
	dimension int
	provider  string
	model     string
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{
		dimension: dimension,
		provider:  "mock",
		model:     "mock-v1",
	}
}

// GenerateEmbedding generates a deterministic fake embedding.
func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if req.Text == "" {
		return nil, embedder.ErrEmptyText
	}

	vector := make([]float32, m.dimension)
	lower := strings.ToLower(req.Text)
	matched := false
	for keyword, axis := range topicAxes {
		if strings.Contains(lower, keyword) && axis < m.dimension {
			vector[axis] += 1
			matched = true
		}
	}

	if !matched {
		hash := sha256.Sum256([]byte(req.Text))
		for i := 0; i < m.dimension; i++ {
			idx := (i * 4) % 32
			val := binary.BigEndian.Uint32(hash[idx : idx+4])
			vector[i] = (float32(val)/float32(1<<32))*2 - 1
		}
	}

	return &embedder.Embedding{
		Vector:    embedder.NormalizeVector(vector),
		Dimension: m.dimension,
		Provider:  m.provider,
		Model:     m.model,
		Hash:      embedder.ComputeHash(req.Text),
	}, nil
}

// GenerateBatch generates embeddings for multiple texts.
func (m *MockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   m.provider,
		Model:      m.model,
	}, nil
}

// Dimension returns the embedding dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

// Provider returns the provider name.
func (m *MockEmbedder) Provider() string {
	return m.provider
}

// Model returns the model name.
func (m *MockEmbedder) Model() string {
	return m.model
}

// Close releases resources (no-op for mock).
func (m *MockEmbedder) Close() error {
	return nil
}

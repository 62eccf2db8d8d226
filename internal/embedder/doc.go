// Package embedder generates vector embeddings for scenes and bible
// chunks using various providers.
//
// The embedder supports multiple providers (Jina AI, OpenAI, local) and
// provides batching, caching, and retry handling for production use.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	// Generate single embedding
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: scene.EmbeddingText(),
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Batch Processing
//
// Indexing embeds every scene of a script, so the batch API is the
// normal path:
//
//	texts := make([]string, len(scenes))
//	for i, s := range scenes {
//	    texts[i] = s.EmbeddingText()
//	}
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// Batching reduces API calls and improves throughput significantly
// compared to sequential single requests.
//
// # Provider Selection
//
// The embedder selects a provider based on environment variables:
//
//  1. If SCRIPTCONTEXT_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → fallback to local provider (offline mode)
//
// Explicit configuration goes through the factory:
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "jina",
//	    APIKey:    "your-api-key",
//	    CacheSize: 10000,
//	})
//
// # Caching
//
// Embeddings are cached in-memory by content hash, so re-indexing a
// script only pays for scenes whose text actually changed:
//
//	cache := embedder.NewCache(10000) // cache 10k embeddings
//
// # Error Handling
//
// Transient API failures are retried with exponential backoff. A batch
// that still fails after retries returns ErrProviderFailed:
//
//	resp, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // API unavailable; searcher downgrades to lexical-only
//	}
package embedder

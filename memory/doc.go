// Package memory is a long-lived semantic memory substrate for a
// conversational agent. Utterances are stored as vector-embedded
// records, retrieved by similarity search with metadata filtering,
// grouped into durable conversation sessions, and aged out by a
// retention policy that deletes old low-importance records.
//
// Architecture:
//   - EmbeddingService: text-to-vector with a bounded memoization
//     cache and L2 normalization, over a pluggable Embedder provider
//     (gemini API, local onnx model, or deterministic mock)
//   - Index: vector index boundary (chromem-go implementation)
//   - Registry: write-through session registry backed by a JSON file
//   - Manager: record storage, ranked retrieval, and retention
//
// Components are constructed once at process start and passed in
// explicitly; there are no package-level singletons.
package memory

// Package memory keeps a conversation inside a token budget and provides a
// long-term memory store.
//
// Manager.BuildContext turns a Session into the ordered message window sent to
// the provider. The system message always comes first, the latest message group
// always comes last, and a pluggable Strategy (SlidingWindow, Summarization,
// Semantic or Hybrid) decides which older groups fit in between. Tool-call
// messages and their results form one atomic group so a window never holds an
// orphaned tool result.
//
// InMemoryStore implements core.MemoryStore for snippets that outlive a single
// window; with an Embedder configured its Search ranks by cosine similarity.
package memory

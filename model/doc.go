// Package model defines the provider-agnostic contract RAAF uses to talk to
// language models, plus the helpers every adapter shares.
//
// Core goals:
//   - One request/response contract: Provider.Complete returns a Response that
//     is either plain text (KindText) or a list of tool calls (KindToolCalls)
//   - Normalized failures: adapters classify vendor errors into the core
//     taxonomy (RateLimited with a retry-after hint, AuthenticationFailed,
//     Timeout, ProviderUnavailable) through ClassifyHTTP and ClassifyError
//   - Bounded retries: Retrier and WithRetry apply exponential backoff with a
//     per-attempt timeout
//   - Lightweight mocking for tests and examples (MockProvider)
//
// Vendor adapters live in sub-packages (openai, anthropic, langchain) so the
// rest of the module stays decoupled from SDKs.
package model

// Package llm talks to the language-model backend that scores notes,
// synthesizes digests and answers questions about a tank.
//
// Every action sends one system prompt and one user prompt and expects a JSON
// object with exactly one top-level key naming the action. Responses are decoded
// into a tagged Result; nothing the backend returns is trusted as well-typed
// until it has been validated here.
package llm

import (
	"context"
)

// Request is a single completion request.
type Request struct {
	System string
	User   string
	Target Target
}

// Target selects where a request goes. Empty fields fall back to the backend's
// configured defaults. Tanks carry their own LLM URL and, optionally, a model and
// API key in their encrypted config.
type Target struct {
	BaseURL string
	Model   string
	APIKey  string
}

// Backend completes a prompt pair and returns the raw response text.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// PinBaseURL returns a backend that sends every request to baseURL, ignoring
// the URL a tank names. An empty baseURL returns backend unchanged.
func PinBaseURL(backend Backend, baseURL string) Backend {
	if baseURL == "" {
		return backend
	}
	return BackendFunc(func(ctx context.Context, req Request) (string, error) {
		req.Target.BaseURL = baseURL
		return backend.Complete(ctx, req)
	})
}

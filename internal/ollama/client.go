// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type so that errors.Is(err, ErrModelNotFound)
// holds for any model-not-found error, not just the sentinel pointer.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type != ErrTypeUnknown && t.Type == e.Type && t.Message == sentinelMessage(t.Type)
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContextExceeded
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrContextExceeded = &ClientError{Type: ErrTypeContextExceeded, Message: "context window exceeded"}
)

func sentinelMessage(t ErrorType) string {
	switch t {
	case ErrTypeNotRunning:
		return ErrNotRunning.Message
	case ErrTypeTimeout:
		return ErrTimeout.Message
	case ErrTypeModelNotFound:
		return ErrModelNotFound.Message
	case ErrTypeContextExceeded:
		return ErrContextExceeded.Message
	}
	return ""
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where a local Ollama listens unless configured otherwise.
// Uses an explicit IPv4 address to avoid IPv6 resolution issues on Windows.
const DefaultBaseURL = "http://127.0.0.1:11434"

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 120s). Generation on
	// CPU-only hosts is slow, so this is deliberately generous.
	Timeout time.Duration

	// DefaultModel is used when a call passes an empty model name.
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      120 * time.Second,
		DefaultModel: "llama3.2",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClient()
//	if err := client.CheckRunning(ctx); err != nil {
//	    log.Fatal("Ollama not available:", err)
//	}
//	resp, err := client.Chat(ctx, "llama3.2", messages)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do sends a request and returns the response when the status is 200.
// Any other status is converted into a *ClientError; the body is closed.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp, path)
	}
	return resp, nil
}

// transportError classifies a failure from http.Client.Do.
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
}

// statusError turns a non-200 response into a *ClientError, keeping the
// server's own error text when it sent one.
func statusError(resp *http.Response, path string) error {
	var ollamaErr OllamaError
	msg := ""
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ollamaErr); err == nil {
		msg = ollamaErr.Error
	}

	if resp.StatusCode == http.StatusNotFound {
		if msg == "" {
			return ErrModelNotFound
		}
		return &ClientError{Type: ErrTypeModelNotFound, Message: ErrModelNotFound.Message, Cause: errors.New(msg)}
	}
	if strings.Contains(strings.ToLower(msg), "context length") {
		return &ClientError{Type: ErrTypeContextExceeded, Message: ErrContextExceeded.Message, Cause: errors.New(msg)}
	}
	if msg != "" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: path + " request failed: " + resp.Status}
}

func (c *Client) decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

func (c *Client) model(name string) string {
	if name == "" {
		return c.config.DefaultModel
	}
	return name
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "", nil)
	if err != nil {
		var ce *ClientError
		if errors.As(err, &ce) && ce.Type == ErrTypeInvalidResponse {
			return &ClientError{Type: ErrTypeConnection, Message: "unexpected status from Ollama", Cause: err}
		}
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// IsAvailable reports whether the server answers the health probe.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.CheckRunning(ctx) == nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var result ListModelsResponse
	if err := c.decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Show retrieves the modelfile, parameters, template and details of a model.
func (c *Client) Show(ctx context.Context, name string) (*ShowModelResponse, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/show", ModelRequest{Name: name})
	if err != nil {
		return nil, err
	}
	var result ShowModelResponse
	if err := c.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PullCallback receives progress events while a model downloads.
type PullCallback func(PullProgress)

// Pull downloads a model. With a nil callback the request is made
// non-streaming and Pull returns once the server reports completion.
func (c *Client) Pull(ctx context.Context, name string, callback PullCallback) error {
	stream := callback != nil
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/pull", ModelRequest{Name: name, Stream: &stream})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewStreamReader(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
		}
		var p PullProgress
		ok, err := reader.Next(&p)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if p.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: p.Error}
		}
		if callback != nil {
			callback(p)
		}
		if p.Status == "success" {
			return nil
		}
	}
}

// Delete removes a local model.
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodDelete, "/api/delete", ModelRequest{Name: name})
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// ModelExists checks if a model is available locally.
func (c *Client) ModelExists(ctx context.Context, model string) bool {
	_, err := c.Show(ctx, model)
	return err == nil
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate runs a single-prompt completion and returns the full response.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts *GenerateOptions) (*GenerateResponse, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/generate", c.generateRequest(model, prompt, opts, false))
	if err != nil {
		return nil, err
	}
	var result GenerateResponse
	if err := c.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateStream runs a completion in streaming mode, invoking callback for
// each chunk in arrival order.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, opts *GenerateOptions, callback StreamCallback) error {
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/generate", c.generateRequest(model, prompt, opts, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return NewStreamReader(resp.Body).Process(ctx, callback)
}

func (c *Client) generateRequest(model, prompt string, opts *GenerateOptions, stream bool) GenerateRequest {
	req := GenerateRequest{Model: c.model(model), Prompt: prompt, Stream: stream}
	if opts != nil {
		req.System = opts.System
		req.Options = opts.Options
	}
	return req
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a chat request and returns the complete response (non-streaming).
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	return c.ChatWithOptions(ctx, model, messages, nil)
}

// ChatWithOptions sends a chat request with custom options.
func (c *Client) ChatWithOptions(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error) {
	req := ChatRequest{Model: c.model(model), Messages: messages, Options: opts}
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	var result ChatResponse
	if err := c.decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
// Returning an error stops the stream and is returned to the caller.
type StreamCallback func(chunk StreamChunk) error

// ChatStream sends a streaming chat request and calls the callback for each chunk.
// The callback is called synchronously in the order chunks are received.
// Returns when streaming is complete or an error occurs.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, opts *Options, callback StreamCallback) error {
	req := ChatRequest{Model: c.model(model), Messages: messages, Stream: true, Options: opts}
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return NewStreamReader(resp.Body).Process(ctx, callback)
}

// ChatStreamChan sends a streaming chat request and returns a channel of chunks.
// The channel is closed when streaming is complete or an error occurs.
// Errors are delivered as chunks with the Error field set.
func (c *Client) ChatStreamChan(ctx context.Context, model string, messages []Message, opts *Options) <-chan StreamChunk {
	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, model, messages, opts, func(chunk StreamChunk) error {
			select {
			case ch <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		if err != nil {
			select {
			case ch <- StreamChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// =============================================================================
// EMBEDDINGS
// =============================================================================

// Embeddings creates an embedding vector for the given text.
func (c *Client) Embeddings(ctx context.Context, model string, text string) ([]float64, error) {
	req := EmbeddingRequest{Model: c.model(model), Prompt: text}
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/embeddings", req)
	if err != nil {
		return nil, err
	}
	var result EmbeddingResponse
	if err := c.decode(resp, &result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// GetDefaultModel returns the current default model.
func (c *Client) GetDefaultModel() string {
	return c.config.DefaultModel
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return hasType(err, ErrTypeModelNotFound)
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	r.Close()
}

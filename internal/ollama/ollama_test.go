// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role string
	}{
		{"user", NewUserMessage("Hello"), "user"},
		{"assistant", NewAssistantMessage("Hello"), "assistant"},
		{"system", NewSystemMessage("Hello"), "system"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.msg.Role != tc.role {
				t.Errorf("Role = %q, want %q", tc.msg.Role, tc.role)
			}
			if tc.msg.Content != "Hello" {
				t.Errorf("Content = %q, want 'Hello'", tc.msg.Content)
			}
			if !ValidRole(tc.msg.Role) {
				t.Errorf("ValidRole(%q) = false", tc.msg.Role)
			}
		})
	}

	if ValidRole("tool") {
		t.Error("ValidRole(tool) should be false")
	}
}

func TestChatResponse_TokensPerSecond(t *testing.T) {
	tests := []struct {
		name         string
		evalCount    int
		evalDuration int64
		want         float64
	}{
		{"normal", 100, int64(time.Second), 100.0},
		{"zero duration", 100, 0, 0.0},
		{"fast", 1000, int64(100 * time.Millisecond), 10000.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := ChatResponse{EvalCount: tc.evalCount, EvalDuration: tc.evalDuration}
			if got := resp.TokensPerSecond(); got != tc.want {
				t.Errorf("TokensPerSecond() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{4411 * 1024 * 1024, "4.31 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.00 TB"},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			m := ModelInfo{Size: tc.size}
			if got := m.FormatSize(); got != tc.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tc.size, got, tc.want)
			}
		})
	}
}

func TestPullProgress_Percent(t *testing.T) {
	if got := (PullProgress{Completed: 50, Total: 200}).Percent(); got != 25 {
		t.Errorf("Percent() = %v, want 25", got)
	}
	if got := (PullProgress{Status: "pulling manifest"}).Percent(); got != -1 {
		t.Errorf("Percent() without total = %v, want -1", got)
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, DefaultModel: "default-model"})
}

func TestCheckRunning(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Ollama is running")
	})
	if err := c.CheckRunning(context.Background()); err != nil {
		t.Fatalf("CheckRunning() error = %v", err)
	}
	if !c.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false")
	}
}

func TestCheckRunning_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url, Timeout: time.Second})
	err := c.CheckRunning(context.Background())
	if !IsNotRunning(err) {
		t.Fatalf("CheckRunning() error = %v, want not running", err)
	}
	if !errors.Is(err, ErrNotRunning) {
		t.Error("errors.Is(err, ErrNotRunning) = false")
	}
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "default-model" {
			t.Errorf("model = %q, want default-model", req.Model)
		}
		if req.System != "be brief" || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Options == nil || req.Options.Temperature != 0.2 {
			t.Errorf("options not forwarded: %+v", req.Options)
		}
		json.NewEncoder(w).Encode(GenerateResponse{Response: "hi there", Done: true})
	})

	resp, err := c.Generate(context.Background(), "", "hello", &GenerateOptions{
		System:  "be brief",
		Options: &Options{Temperature: 0.2},
	})
	require.NoError(t, err)
	if resp.Response != "hi there" {
		t.Errorf("Response = %q", resp.Response)
	}
}

func TestGenerateStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"Hel","done":false}`+"\n")
		io.WriteString(w, "not json\n")
		io.WriteString(w, `{"response":"lo","done":false}`+"\n")
		io.WriteString(w, `{"response":"","done":true,"eval_count":2}`+"\n")
	})

	var parts []string
	var final StreamChunk
	err := c.GenerateStream(context.Background(), "m", "p", nil, func(chunk StreamChunk) error {
		if chunk.Content != "" {
			parts = append(parts, chunk.Content)
		}
		final = chunk
		return nil
	})
	require.NoError(t, err)
	if got := strings.Join(parts, ""); got != "Hello" {
		t.Errorf("streamed content = %q, want Hello", got)
	}
	if !final.Done || final.CompletionTokens != 2 {
		t.Errorf("final chunk = %+v", final)
	}
}

func TestChatWithOptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(ChatResponse{Message: NewAssistantMessage("pong"), Done: true})
	})

	resp, err := c.ChatWithOptions(context.Background(), "m", []Message{
		NewSystemMessage("sys"), NewUserMessage("ping"),
	}, &Options{NumPredict: 10})
	require.NoError(t, err)
	if resp.Message.Content != "pong" {
		t.Errorf("Content = %q, want pong", resp.Message.Content)
	}
}

func TestChatStream_CallbackErrorStops(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			io.WriteString(w, `{"message":{"role":"assistant","content":"x"},"done":false}`+"\n")
		}
	})

	stop := errors.New("stop")
	calls := 0
	err := c.ChatStream(context.Background(), "m", nil, nil, func(StreamChunk) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("ChatStream() error = %v, want stop", err)
	}
	if calls != 2 {
		t.Errorf("callback calls = %d, want 2", calls)
	}
}

func TestChatStreamChan(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"content":"a"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"content":"b"},"done":true}`+"\n")
	})

	var (
		got     strings.Builder
		sawDone bool
	)
	for chunk := range c.ChatStreamChan(context.Background(), "m", nil, nil) {
		if chunk.Error != nil {
			t.Fatalf("stream error = %v", chunk.Error)
		}
		got.WriteString(chunk.Content)
		sawDone = sawDone || chunk.Done
	}
	if got.String() != "ab" || !sawDone {
		t.Errorf("accumulated = %q done=%v", got.String(), sawDone)
	}
}

func TestStreamStats(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &StreamStats{StartTime: start}
	s.Observe("")
	if !s.FirstTokenTime.IsZero() || s.CompletionTokens != 0 {
		t.Fatalf("empty fragment counted: %+v", s)
	}

	s.Observe("a")
	first := s.FirstTokenTime
	s.Observe("b")
	if s.FirstTokenTime != first {
		t.Errorf("first token time moved")
	}
	if s.CompletionTokens != 2 {
		t.Errorf("CompletionTokens = %d, want 2", s.CompletionTokens)
	}

	s.FirstTokenTime = start.Add(500 * time.Millisecond)
	s.TTFT = 500 * time.Millisecond
	s.Observe("c")
	s.Observe("d")
	s.finalizeAt(start.Add(2500 * time.Millisecond))

	if s.TotalDuration != 2500*time.Millisecond {
		t.Errorf("TotalDuration = %v", s.TotalDuration)
	}
	if s.TokensPerSecond != 2 {
		t.Errorf("TokensPerSecond = %v, want 2", s.TokensPerSecond)
	}
	if got, want := s.Format(), "2.5s | 4 tokens | 2.0 tok/s | TTFT 500ms"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestStreamStats_NoTokens(t *testing.T) {
	start := time.Now()
	s := &StreamStats{StartTime: start}
	s.finalizeAt(start.Add(300 * time.Millisecond))
	if got, want := s.Format(), "300ms | 0 tokens | 0.0 tok/s | TTFT 0ms"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, `{"error":"model 'nope' not found"}`, IsModelNotFound},
		{"not found without body", http.StatusNotFound, ``, IsModelNotFound},
		{"context", http.StatusBadRequest, `{"error":"input exceeds context length"}`, func(err error) bool {
			return errors.Is(err, ErrContextExceeded)
		}},
		{"server message", http.StatusInternalServerError, `{"error":"boom"}`, func(err error) bool {
			return err.Error() == "boom"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})
			_, err := c.Chat(context.Background(), "nope", nil)
			if err == nil || !tc.check(err) {
				t.Errorf("Chat() error = %v", err)
			}
		})
	}
}

func TestListShowDelete(t *testing.T) {
	var deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			io.WriteString(w, `{"models":[{"name":"llama3.2:latest","size":2019393189,"details":{"family":"llama"}}]}`)
		case "/api/show":
			io.WriteString(w, `{"modelfile":"FROM x","parameters":"stop <eot>","template":"{{ .Prompt }}"}`)
		case "/api/delete":
			if r.Method != http.MethodDelete {
				t.Errorf("delete method = %s", r.Method)
			}
			var req ModelRequest
			json.NewDecoder(r.Body).Decode(&req)
			deleted = req.Name
		}
	})
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	if models[0].Details.Family != "llama" {
		t.Errorf("Family = %q", models[0].Details.Family)
	}

	info, err := c.Show(ctx, "llama3.2")
	require.NoError(t, err)
	if info.Template != "{{ .Prompt }}" {
		t.Errorf("Template = %q", info.Template)
	}
	if !c.ModelExists(ctx, "llama3.2") {
		t.Error("ModelExists() = false")
	}

	require.NoError(t, c.Delete(ctx, "llama3.2"))
	if deleted != "llama3.2" {
		t.Errorf("deleted = %q", deleted)
	}
}

func TestPull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"pulling manifest"}`+"\n")
		io.WriteString(w, `{"status":"downloading","digest":"sha256:1","total":100,"completed":40}`+"\n")
		io.WriteString(w, `{"status":"success"}`+"\n")
	})

	var events []PullProgress
	err := c.Pull(context.Background(), "tiny", func(p PullProgress) { events = append(events, p) })
	require.NoError(t, err)
	require.Len(t, events, 3)
	if events[1].Completed != 40 || events[1].Total != 100 {
		t.Errorf("progress event = %+v", events[1])
	}
}

func TestPull_ErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"pull model manifest: file does not exist"}`+"\n")
	})
	err := c.Pull(context.Background(), "missing", nil)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("Pull() error = %v", err)
	}
}

func TestEmbeddings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"embedding":[0.1,0.2,0.3]}`)
	})
	vec, err := c.Embeddings(context.Background(), "nomic-embed-text", "hello")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestStreamReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewStreamReader(strings.NewReader(`{"response":"x"}` + "\n"))
	err := r.Process(ctx, func(StreamChunk) error { return nil })
	if !IsTimeout(err) {
		t.Errorf("Process() error = %v, want timeout", err)
	}
}

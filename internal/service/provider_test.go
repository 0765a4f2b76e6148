package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"landiq/internal/config"
)

// fakeProvider is an httptest server that plays back canned chat completion
// responses in order and records every request it received
type fakeProvider struct {
	srv       *httptest.Server
	mu        sync.Mutex
	requests  []ChatCompletionRequest
	responses []string
	calls     int
}

func newFakeProvider(t *testing.T, responses ...string) *fakeProvider {
	t.Helper()

	f := &fakeProvider{responses: responses}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		idx := f.calls
		f.calls++
		f.mu.Unlock()

		if idx >= len(f.responses) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "no more canned responses"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.responses[idx]))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) request(i int) ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeProvider) config() *config.OpenAIConfig {
	return &config.OpenAIConfig{
		APIKey:          "test-key",
		APIBase:         f.srv.URL,
		ChatModel:       "gpt-4o",
		ChatTemperature: 0.2,
		ChatMaxTokens:   1024,
		Timeout:         5,
	}
}

// assistantText builds a canned completion whose answer is plain text
func assistantText(content string) string {
	return completionResponse(map[string]any{
		"role":    "assistant",
		"content": content,
	})
}

// assistantToolCall builds a canned completion that requests one tool call
func assistantToolCall(id, name, arguments string) string {
	return completionResponse(map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []any{
			map[string]any{
				"id":   id,
				"type": "function",
				"function": map[string]any{
					"name":      name,
					"arguments": arguments,
				},
			},
		},
	})
}

func completionResponse(message map[string]any) string {
	body, err := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       message,
				"finish_reason": "stop",
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return string(body)
}

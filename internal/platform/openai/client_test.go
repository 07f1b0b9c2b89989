package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: want=/v1/embeddings got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization: got=%q", got)
		}
		var body embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != "text-embedding-ada-002" {
			t.Fatalf("model: got=%q", body.Model)
		}
		if len(body.Input) != 2 || body.Input[1] != " " {
			t.Fatalf("inputs: got=%q", body.Input)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1}},
				{"index": 0, "embedding": []float64{1, 0}},
			},
		}), nil
	})

	got, err := c.Embed(context.Background(), []string{"hello", "  "})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Fatalf("order: got=%v", got)
	}
}

func TestEmbedRetriesOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, 2, func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			resp := jsonResponse(t, http.StatusTooManyRequests, map[string]any{"error": "slow down"})
			resp.Header.Set("Retry-After", "0")
			return resp, nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float64{0.5}}},
		}), nil
	})
	if _, err := c.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, 3, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(t, http.StatusBadRequest, map[string]any{"error": "bad"}), nil
	})
	_, err := c.Embed(context.Background(), []string{"x"})
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("error: want HTTPError 400 got=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestChatCompletionToolCalls(t *testing.T) {
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["temperature"] != 0.1 {
			t.Fatalf("temperature: got=%v", body["temperature"])
		}
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Fatalf("tools: got=%v", body["tools"])
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]any{"name": "answer_yes", "arguments": `{"input":"new rates"}`},
					}},
				},
			}},
		}), nil
	})
	temp := 0.1
	msg, err := c.ChatCompletion(context.Background(), ChatRequest{
		Messages:    []ChatMessage{{Role: RoleUser, Content: "?"}},
		Tools:       []Tool{FunctionTool("answer_yes", "yes", nil)},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "answer_yes" {
		t.Fatalf("tool calls: got=%+v", msg.ToolCalls)
	}
}

func TestStreamChatCompletionDeltas(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"<p>Hel"}}]}`,
		``,
		`: keep-alive`,
		`data: {"choices":[{"delta":{"content":"lo</p>"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Fatalf("accept: got=%q", r.Header.Get("Accept"))
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       io.NopCloser(strings.NewReader(stream)),
		}, nil
	})

	var deltas []string
	full, err := c.StreamChatCompletion(context.Background(), ChatRequest{}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamChatCompletion: %v", err)
	}
	if full != "<p>Hello</p>" {
		t.Fatalf("full: want=%q got=%q", "<p>Hello</p>", full)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas: want=2 got=%d", len(deltas))
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(t, http.StatusServiceUnavailable, map[string]any{"error": "down"}), nil
	})
	for i := 0; i < 5; i++ {
		if _, err := c.ChatCompletion(context.Background(), ChatRequest{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, err := c.ChatCompletion(context.Background(), ChatRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("breaker: want ErrOpenState got=%v", err)
	}
	if calls != 5 {
		t.Fatalf("calls: want=5 got=%d", calls)
	}
}

func newTestClient(t *testing.T, retries int, roundTrip func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	c := newClient(log, Config{
		APIKey:     "sk-test",
		BaseURL:    "http://openai.local/",
		Model:      "gpt-test",
		EmbedModel: "text-embedding-ada-002",
		MaxRetries: retries,
	}, &http.Client{Transport: roundTripFunc(roundTrip)})
	c.baseDelay = time.Millisecond
	return c
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

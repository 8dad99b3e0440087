package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"DigestPipeline/internal/config"
	"DigestPipeline/internal/ports"
)

func TestCompleteSendsPromptAndReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  llm, chips \n"}},{"message":{"content":"ignored"}}]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "gpt-4o-mini", APIKey: "key"}, time.Second)
	text, err := client.Complete(context.Background(), ports.Prompt{
		System:      "role",
		User:        "question",
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "llm, chips" {
		t.Fatalf("unexpected text %q", text)
	}

	if got.Model != "gpt-4o-mini" || got.MaxTokens != 100 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != "role" || got.Messages[1].Content != "question" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
		want   string
	}{
		"http error":  {status: http.StatusTooManyRequests, body: `{"error":"quota"}`, want: "429"},
		"no choices":  {status: http.StatusOK, body: `{"choices":[]}`, want: "no choices"},
		"bad payload": {status: http.StatusOK, body: `not json`, want: "decode"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: server.URL, Model: "m", APIKey: "k"}, time.Second)
			_, err := client.Complete(context.Background(), ports.Prompt{User: "q"})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCompleteMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: "http://unused", Model: "m"}, 0)
	if _, err := client.Complete(context.Background(), ports.Prompt{User: "q"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

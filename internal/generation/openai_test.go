package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/prompt"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT * FROM cars WHERE color = 'red'"}}]}`))
	}))
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL)
	payload := mustPayload(t, prompt.HumanToSQL, "show me all the cars that are red")
	text, err := client.Generate(context.Background(), payload, time.Second)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "SELECT * FROM cars WHERE color = 'red'" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-test" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %#v", gotBody["messages"])
	}
	if _, ok := gotBody["max_tokens"]; ok {
		t.Fatal("max_tokens should be omitted when unset")
	}
}

func TestOpenAIClientStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key sk-test"}}`))
		}))
		client := newTestOpenAIClient(t, server.URL)
		_, err := client.Generate(context.Background(), mustPayload(t, prompt.HumanToSQL, "x"), time.Second)
		server.Close()

		var genErr *Error
		if !errors.As(err, &genErr) {
			t.Fatalf("status %d: error = %v, want *Error", tt.status, err)
		}
		if genErr.Kind != KindBackend || genErr.StatusCode != tt.status {
			t.Fatalf("status %d: got %+v", tt.status, genErr)
		}
		if genErr.Transient != tt.transient {
			t.Fatalf("status %d: Transient = %v, want %v", tt.status, genErr.Transient, tt.transient)
		}
		if strings.Contains(genErr.Detail, "sk-test") {
			t.Fatalf("detail leaks api key: %q", genErr.Detail)
		}
	}
}

func TestOpenAIClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestOpenAIClient(t, server.URL)
	start := time.Now()
	_, err := client.Generate(context.Background(), mustPayload(t, prompt.SQLToHuman, "SELECT 1"), 50*time.Millisecond)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Generate() did not honor budget, took %s", time.Since(start))
	}
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindTimeout || !genErr.Transient {
		t.Fatalf("error = %v, want transient timeout", err)
	}
}

func TestOpenAIClientCanceledByCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	client := newTestOpenAIClient(t, server.URL)
	_, err := client.Generate(ctx, mustPayload(t, prompt.HumanToSQL, "x"), 5*time.Second)
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindBackend || genErr.Transient {
		t.Fatalf("error = %v, want non-transient backend error", err)
	}
}

func TestOpenAIClientMalformedResponses(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":"   "}}]}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		client := newTestOpenAIClient(t, server.URL)
		_, err := client.Generate(context.Background(), mustPayload(t, prompt.HumanToSQL, "x"), time.Second)
		server.Close()

		var genErr *Error
		if !errors.As(err, &genErr) || genErr.Kind != KindBackend || genErr.Transient {
			t.Fatalf("body %q: error = %v, want non-transient backend error", body, err)
		}
	}
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestExcerptTruncatesAndRedacts(t *testing.T) {
	long := strings.Repeat("a", maxDetailRunes+50) + " secret"
	got := excerpt(long, "secret")
	if strings.Contains(got, "secret") {
		t.Fatalf("excerpt leaks secret: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("excerpt not truncated: %q", got)
	}
	if got := excerpt("line one\n\n  line two", ""); got != "line one line two" {
		t.Fatalf("excerpt whitespace = %q", got)
	}
}

func newTestOpenAIClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: baseURL, APIKey: "sk-test", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	return client
}

func mustPayload(t *testing.T, direction prompt.Direction, text string) prompt.Payload {
	t.Helper()
	payload, err := prompt.Build(direction, text)
	if err != nil {
		t.Fatalf("prompt.Build() error = %v", err)
	}
	return payload
}

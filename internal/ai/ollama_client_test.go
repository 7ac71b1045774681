package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestOllamaGenerateSuccess(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "올라마 응답"},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, GenerateRequest{Model: "llama3.1:8b", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 16})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "올라마 응답" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected simulated request id")
	}
}

func TestOllamaGenerateBadRequest(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "bad request"})
	}))
	defer srv.Close()
	c := NewOllamaClient(RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOllamaGenerateEmptyMessages(t *testing.T) {
	c := NewOllamaClient(RuntimeConfig{Host: "localhost:11434", HTTPTimeout: 2 * time.Second, RetryMax: 1})

	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{}})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected 'messages cannot be empty' error, got: %v", err)
	}

	err = c.GenerateStream(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{}}, func(string) {})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected 'messages cannot be empty' error, got: %v", err)
	}
}

func TestOllamaGenerateMultipleMessages(t *testing.T) {
	var capturedRequest ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}

		if err := json.NewDecoder(r.Body).Decode(&capturedRequest); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "response"},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messages := []Message{
		{Role: "system", Content: "당신은 데이터 분석가입니다"},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "How are you?"},
	}

	_, err := c.Generate(ctx, GenerateRequest{Model: "llama3.1:8b", Messages: messages})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if len(capturedRequest.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(capturedRequest.Messages))
	}

	expectedMessages := []ollamaChatMessage{
		{Role: "system", Content: "당신은 데이터 분석가입니다"},
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "user", Content: "How are you?"},
	}

	for i, expected := range expectedMessages {
		if capturedRequest.Messages[i].Role != expected.Role {
			t.Fatalf("message %d role: expected %s, got %s", i, expected.Role, capturedRequest.Messages[i].Role)
		}
		if capturedRequest.Messages[i].Content != expected.Content {
			t.Fatalf("message %d content: expected %s, got %s", i, expected.Content, capturedRequest.Messages[i].Content)
		}
	}
}

func TestOllamaMissingModel(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model \"qwen2.5:7b\" not found, try pulling it first"})
	}))
	defer srv.Close()

	c := NewOllamaClient(RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "qwen2.5:7b", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %T: %v", err, err)
	}
	if Hint(err) == "" {
		t.Fatalf("expected a hint for a missing model")
	}
}

func TestOllamaImagesAttachToLastUserMessage(t *testing.T) {
	var captured ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]any{"role": "assistant", "content": "ok"}, "done": true})
	}))
	defer srv.Close()

	c := NewOllamaClient(RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1})
	_, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "gemma3:12b",
		Messages: []Message{{Role: RoleUser, Content: "첫 질문"}, {Role: RoleAssistant, Content: "답"}, {Role: RoleUser, Content: "이미지 설명"}},
		Images:   []Image{{Name: "a.png", MIME: "image/png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(captured.Messages[0].Images) != 0 || len(captured.Messages[2].Images) != 1 {
		t.Fatalf("images should ride on the last user message: %+v", captured.Messages)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open local listener: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewOllamaClient(RuntimeConfig{Host: addr, HTTPTimeout: time.Second, RetryMax: 1})
	_, err = c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T: %v", err, err)
	}
	if ue.Host != "http://"+addr {
		t.Fatalf("unexpected host %q", ue.Host)
	}
}

func TestOllamaEmbeddings(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{float64(len([]rune(body.Prompt))), 0.5}})
	}))
	defer srv.Close()

	e := NewOllamaEmbClient(RuntimeConfig{Host: srv.URL})
	vecs, err := e.Embed(context.Background(), "nomic-embed-text", []string{"거래처", "매출 데이터"})
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 3 || vecs[1][0] != 6 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

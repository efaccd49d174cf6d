package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" || req.Prompt != "hello" {
			t.Errorf("request: %+v", req)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text")
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[0] != float32(0.1) {
		t.Errorf("vec: %v", vec)
	}
}

func TestEmbed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "an answer"}})
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "llama3.1:8b", 0.3)
	reply, err := c.Generate(context.Background(), "be helpful", "a question")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "an answer" {
		t.Errorf("reply: %q", reply)
	}
}

func TestGenerate_Unavailable(t *testing.T) {
	c := NewChatClient("http://127.0.0.1:1", "m", 0)
	if _, err := c.Generate(context.Background(), "s", "p"); err == nil {
		t.Fatal("expected connection error")
	}
}

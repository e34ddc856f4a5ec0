package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateMessage_RequestShape(t *testing.T) {
	var got MessagesRequest
	var gotKey, gotVersion, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","role":"assistant","content":[{"type":"text","text":"{\"tienda\":\"Comex\"}"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL+"/", time.Second)
	resp, err := c.CreateMessage(context.Background(), MessagesRequest{
		Model:     DefaultModel,
		MaxTokens: DefaultMaxTokens,
		Messages: []Message{{
			Role:    "user",
			Content: []ContentBlock{DocumentBlock("application/pdf", "JVBERi0="), TextBlock("extract")},
		}},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if gotPath != "/messages" {
		t.Errorf("path = %q, want /messages", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != apiVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if got.Model != DefaultModel || got.MaxTokens != 1500 {
		t.Errorf("model/max_tokens = %s/%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", got.Messages)
	}
	doc := got.Messages[0].Content[0]
	if doc.Type != "document" || doc.Source == nil || doc.Source.Type != "base64" || doc.Source.MediaType != "application/pdf" {
		t.Errorf("document block = %+v", doc)
	}
	if resp.FirstText() != `{"tienda":"Comex"}` {
		t.Errorf("FirstText = %q", resp.FirstText())
	}
}

// TestCreateMessage_NoRetry verifies a failing status is surfaced after a
// single attempt.
func TestCreateMessage_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL, time.Second)
	_, err := c.CreateMessage(context.Background(), MessagesRequest{Model: "m", MaxTokens: 1})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestCreateMessage_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL, 20*time.Millisecond)
	if _, err := c.CreateMessage(context.Background(), MessagesRequest{}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestFirstTextSkipsNonText(t *testing.T) {
	r := &MessagesResponse{Content: []ContentBlock{{Type: "tool_use"}, TextBlock("hola"), TextBlock("adios")}}
	if got := r.FirstText(); got != "hola" {
		t.Errorf("FirstText = %q, want hola", got)
	}
	if got := (&MessagesResponse{}).FirstText(); got != "" {
		t.Errorf("empty FirstText = %q", got)
	}
}

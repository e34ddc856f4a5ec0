package intake

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/gastos/internal/anthropic"
)

// mockMessenger implements Messenger for testing.
type mockMessenger struct {
	reply string
	err   error
	last  anthropic.MessagesRequest
	calls int
}

func (m *mockMessenger) CreateMessage(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &anthropic.MessagesResponse{Content: []anthropic.ContentBlock{anthropic.TextBlock(m.reply)}}, nil
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json{\"a\":1}```\n", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseReply_Full(t *testing.T) {
	reply := "```json\n" + `{"tienda":"Home Depot","fecha":"2025-02-10","total":1520.75,"items":["azulejo","pegamento"],"numeroFactura":"HD-991"}` + "\n```"

	got, err := ParseReply(reply)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if got.Store != "Home Depot" || got.Date != "2025-02-10" || got.Number != "HD-991" {
		t.Errorf("got %+v", got)
	}
	if got.Total.String() != "1520.75" {
		t.Errorf("Total = %s", got.Total)
	}
	if !reflect.DeepEqual(got.ItemList(), []string{"azulejo", "pegamento"}) {
		t.Errorf("items = %v", got.ItemList())
	}
}

func TestParseReply_NullsAndNumbers(t *testing.T) {
	got, err := ParseReply(`{"tienda":null,"fecha":null,"total":null,"items":null,"numeroFactura":48213}`)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if got.Store != "" || got.Date != "" || !got.Total.IsNull() {
		t.Errorf("nulls not zeroed: %+v", got)
	}
	if got.Number != "48213" {
		t.Errorf("Number = %q, want 48213", got.Number)
	}
	if items := got.ItemList(); items == nil || len(items) != 0 {
		t.Errorf("ItemList = %#v, want empty non-nil", items)
	}
}

func TestParseReply_Malformed(t *testing.T) {
	for _, reply := range []string{
		"Lo siento, no puedo leer esta factura.",
		`{"tienda":"Comex",`,
		"",
	} {
		_, err := ParseReply(reply)
		if !errors.Is(err, ErrParse) {
			t.Errorf("ParseReply(%q) error = %v, want ErrParse", reply, err)
		}
	}
}

func TestExtract_RequestShape(t *testing.T) {
	mock := &mockMessenger{reply: `{"tienda":"Comex","fecha":"2025-01-01","total":10,"items":[],"numeroFactura":null}`}
	e := NewExtractor(mock, "", 0)

	if _, err := e.Extract(context.Background(), MIMEPDF, "JVBERi0="); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if mock.last.Model != anthropic.DefaultModel || mock.last.MaxTokens != anthropic.DefaultMaxTokens {
		t.Errorf("model/max_tokens = %s/%d", mock.last.Model, mock.last.MaxTokens)
	}
	blocks := mock.last.Messages[0].Content
	if blocks[0].Type != "document" || blocks[1].Type != "text" {
		t.Errorf("pdf blocks = %s, %s", blocks[0].Type, blocks[1].Type)
	}

	if _, err := e.Extract(context.Background(), MIMEPNG, "iVBORw0K"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	blocks = mock.last.Messages[0].Content
	if blocks[0].Type != "image" || blocks[0].Source.MediaType != MIMEPNG {
		t.Errorf("image block = %+v", blocks[0])
	}
	if !strings.Contains(blocks[1].Text, "numeroFactura") {
		t.Errorf("prompt does not request the invoice schema: %q", blocks[1].Text)
	}
}

func TestExtract_TransportError(t *testing.T) {
	apiErr := &anthropic.APIError{Status: 500, Body: "overloaded"}
	e := NewExtractor(&mockMessenger{err: apiErr}, "m", 10)

	_, err := e.Extract(context.Background(), MIMEJPEG, "x")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
	var got *anthropic.APIError
	if !errors.As(err, &got) || got.Status != 500 {
		t.Errorf("APIError not preserved: %v", err)
	}
}

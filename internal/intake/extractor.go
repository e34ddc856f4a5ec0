package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kalambet/gastos/internal/anthropic"
	"github.com/kalambet/gastos/internal/ledger"
)

// Messenger sends one Messages API request.
type Messenger interface {
	CreateMessage(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error)
}

// Extracted is the structured data the service returns for one invoice.
// Unknown fields come back as null and decode to their zero value.
type Extracted struct {
	Store  looseString   `json:"tienda"`
	Date   looseString   `json:"fecha"`
	Total  ledger.Amount `json:"total"`
	Items  []looseString `json:"items"`
	Number looseString   `json:"numeroFactura"`
}

// ItemList returns the items as plain strings, never nil.
func (e Extracted) ItemList() []string {
	out := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		out = append(out, string(it))
	}
	return out
}

// looseString accepts a JSON string, number or null. Models sometimes
// return invoice numbers as bare numbers.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = looseString(n.String())
	}
	return nil
}

var fences = regexp.MustCompile("```json\\n?|```\\n?")

// StripFences removes markdown code fences around the reply and trims it.
func StripFences(s string) string {
	return strings.TrimSpace(fences.ReplaceAllString(s, ""))
}

// ParseReply decodes the model's text reply. Any malformed JSON is a parse
// error; no partial data is returned.
func ParseReply(text string) (Extracted, error) {
	cleaned := StripFences(text)
	var out Extracted
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return out, nil
}

// Extractor turns an encoded invoice file into Extracted data with one
// remote request.
type Extractor struct {
	client    Messenger
	model     string
	maxTokens int
}

// NewExtractor creates an Extractor. Zero model/maxTokens fall back to the defaults.
func NewExtractor(client Messenger, model string, maxTokens int) *Extractor {
	if model == "" {
		model = anthropic.DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = anthropic.DefaultMaxTokens
	}
	return &Extractor{client: client, model: model, maxTokens: maxTokens}
}

// Extract sends the base64 data and parses the reply.
func (e *Extractor) Extract(ctx context.Context, mimeType, data string) (Extracted, error) {
	resp, err := e.client.CreateMessage(ctx, BuildRequest(e.model, e.maxTokens, mimeType, data))
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	text := resp.FirstText()
	out, err := ParseReply(text)
	if err != nil {
		slog.Warn("failed to unmarshal invoice from model response", "error", err, "response", text)
		return Extracted{}, err
	}
	return out, nil
}

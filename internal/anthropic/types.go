package anthropic

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one element of a message. Only the fields matching Type are set.
type ContentBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

// Source carries inline base64 file data for image and document blocks.
type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock returns an inline base64 image block.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Type: "image", Source: &Source{Type: "base64", MediaType: mediaType, Data: data}}
}

// DocumentBlock returns an inline base64 document (PDF) block.
func DocumentBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Type: "document", Source: &Source{Type: "base64", MediaType: mediaType, Data: data}}
}

// MessagesResponse is the subset of the reply the extractor reads.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// FirstText returns the text of the first text block, or "".
func (r *MessagesResponse) FirstText() string {
	for _, b := range r.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}

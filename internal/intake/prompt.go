package intake

import (
	"github.com/kalambet/gastos/internal/anthropic"
)

// extractionPrompt asks for the fixed invoice schema and nothing else.
// Invoices are Spanish-language store tickets, so the prompt is too.
const extractionPrompt = `Analiza esta factura y extrae la siguiente información en formato JSON:
{
  "tienda": "nombre de la tienda o proveedor",
  "fecha": "fecha de la factura en formato YYYY-MM-DD",
  "total": número total de la factura (solo el número, sin símbolo de moneda),
  "items": ["lista de items o productos comprados"],
  "numeroFactura": "número de factura si está visible"
}

Si no puedes encontrar algún dato, usa null. Responde SOLO con el JSON, sin texto adicional.`

// BuildRequest builds the single-message extraction request. PDFs travel as a
// document block, everything else as an image block; both are followed by
// the same prompt.
func BuildRequest(model string, maxTokens int, mimeType, data string) anthropic.MessagesRequest {
	var file anthropic.ContentBlock
	if mimeType == MIMEPDF {
		file = anthropic.DocumentBlock(mimeType, data)
	} else {
		file = anthropic.ImageBlock(mimeType, data)
	}
	return anthropic.MessagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: []anthropic.ContentBlock{file, anthropic.TextBlock(extractionPrompt)},
		}},
	}
}

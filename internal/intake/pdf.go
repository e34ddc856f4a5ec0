package intake

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfPageCount opens the document locally. The extraction service makes the
// final call on whether a PDF is usable, so callers only log failures.
func pdfPageCount(data []byte) (n int, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	return r.NumPage(), nil
}

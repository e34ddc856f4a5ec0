package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Attachment is an original invoice file kept next to the document.
type Attachment struct {
	ID        string
	Name      string
	MIMEType  string
	Data      []byte
	CreatedAt time.Time
}

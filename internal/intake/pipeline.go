// Package intake turns invoice files into ledger records: encode, extract
// with the document-understanding service, store the original, route.
package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/storage"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"

	defaultConcurrency = 4
)

// UserMessage is the only thing shown to the operator when intake fails.
const UserMessage = "Error processing the invoice. Try again or enter the data manually."

var (
	ErrBusy        = errors.New("intake already in progress")
	ErrRead        = errors.New("reading file")
	ErrUnsupported = errors.New("unsupported file type")
	ErrTransport   = errors.New("extraction request failed")
	ErrParse       = errors.New("malformed extraction reply")
)

var supported = map[string]bool{
	MIMEPDF:  true,
	MIMEJPEG: true,
	MIMEPNG:  true,
	MIMEGIF:  true,
	MIMEWebP: true,
}

var extensions = map[string]string{
	".pdf":  MIMEPDF,
	".jpg":  MIMEJPEG,
	".jpeg": MIMEJPEG,
	".png":  MIMEPNG,
	".gif":  MIMEGIF,
	".webp": MIMEWebP,
}

// File is one invoice document to process.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DetectMIME resolves the MIME type from the declared value, the file
// extension, then the content.
func DetectMIME(name, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = declared[:i]
		}
		return strings.TrimSpace(strings.ToLower(declared))
	}
	if m, ok := extensions[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	m := http.DetectContentType(data)
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

// ReadFile loads a file from disk.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	name := filepath.Base(path)
	return File{Name: name, MIMEType: DetectMIME(name, "", data), Data: data}, nil
}

// Result is the outcome for one file of a submission.
type Result struct {
	FileName string
	Invoice  ledger.Invoice
	Err      error
}

// Router files invoices into the document.
type Router interface {
	Route(ctx context.Context, inv ledger.Invoice, dest ledger.Destination, target ledger.Target) (ledger.Invoice, error)
}

// AttachmentStore keeps the original files.
type AttachmentStore interface {
	SaveAttachment(a storage.Attachment) error
	DeleteAttachment(id string) error
}

// Pipeline runs submissions. Only one submission runs at a time.
type Pipeline struct {
	router      Router
	attachments AttachmentStore
	extractor   *Extractor
	concurrency int

	busy atomic.Bool
}

// NewPipeline creates a Pipeline. concurrency bounds the files extracted at
// once within one submission.
func NewPipeline(router Router, attachments AttachmentStore, extractor *Extractor, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pipeline{
		router:      router,
		attachments: attachments,
		extractor:   extractor,
		concurrency: concurrency,
	}
}

// Busy reports whether a submission is in progress.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Submit processes files independently: one file failing leaves the others
// untouched. It returns ErrBusy when another submission is still running.
func (p *Pipeline) Submit(ctx context.Context, files []File, dest ledger.Destination, target ledger.Target) ([]Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	results := make([]Result, len(files))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, f := range files {
		g.Go(func() error {
			inv, err := p.process(ctx, f, dest, target)
			results[i] = Result{FileName: f.Name, Invoice: inv, Err: err}
			return nil
		})
	}
	g.Wait()

	return results, nil
}

func (p *Pipeline) process(ctx context.Context, f File, dest ledger.Destination, target ledger.Target) (ledger.Invoice, error) {
	start := time.Now()
	log := slog.With("file", f.Name, "mime", f.MIMEType, "destination", dest)

	if len(f.Data) == 0 {
		err := fmt.Errorf("%w: %s is empty", ErrRead, f.Name)
		log.Error("invoice intake failed", "error", err)
		return ledger.Invoice{}, err
	}
	if !supported[f.MIMEType] {
		err := fmt.Errorf("%w: %s", ErrUnsupported, f.MIMEType)
		log.Error("invoice intake failed", "error", err)
		return ledger.Invoice{}, err
	}

	if f.MIMEType == MIMEPDF {
		if pages, err := pdfPageCount(f.Data); err != nil {
			log.Warn("pdf could not be opened locally", "error", err)
		} else {
			log.Debug("pdf opened", "pages", pages)
		}
	}

	encoded := base64.StdEncoding.EncodeToString(f.Data)

	data, err := p.extractor.Extract(ctx, f.MIMEType, encoded)
	if err != nil {
		log.Error("invoice intake failed", "error", err)
		return ledger.Invoice{}, err
	}

	id := ledger.NewInvoiceID()
	inv := ledger.Invoice{
		ID:       id,
		Store:    string(data.Store),
		Date:     string(data.Date),
		Total:    data.Total,
		Items:    data.ItemList(),
		Number:   string(data.Number),
		FileRef:  ledger.AttachmentPrefix + id.String(),
		FileName: f.Name,
		FileType: f.MIMEType,
	}

	if err := p.attachments.SaveAttachment(storage.Attachment{
		ID:       id.String(),
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Data:     f.Data,
	}); err != nil {
		log.Error("saving attachment failed", "error", err)
		return ledger.Invoice{}, fmt.Errorf("saving attachment: %w", err)
	}

	routed, err := p.router.Route(ctx, inv, dest, target)
	if err != nil {
		if derr := p.attachments.DeleteAttachment(id.String()); derr != nil {
			log.Warn("removing orphaned attachment failed", "error", derr)
		}
		log.Error("routing invoice failed", "error", err)
		return ledger.Invoice{}, err
	}

	log.Info("invoice extracted", "invoice_id", routed.ID, "store", routed.Store, "total", routed.Total.String(), "duration", time.Since(start))
	return routed, nil
}

package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/gastos/internal/anthropic"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/storage"
)

const goodReply = `{"tienda":"Comex","fecha":"2025-03-01","total":88.20,"items":["pintura"],"numeroFactura":"A-77"}`

// scriptedMessenger answers per file, keyed by the base64 payload.
type scriptedMessenger struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	block   chan struct{}
}

func (m *scriptedMessenger) CreateMessage(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error) {
	if m.block != nil {
		<-m.block
	}
	data := req.Messages[0].Content[0].Source.Data
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[data]; ok {
		return nil, err
	}
	reply, ok := m.replies[data]
	if !ok {
		reply = goodReply
	}
	return &anthropic.MessagesResponse{Content: []anthropic.ContentBlock{anthropic.TextBlock(reply)}}, nil
}

type fixture struct {
	store    *storage.Store
	ledger   *ledger.Service
	pipeline *Pipeline
	client   ledger.Client
}

func newFixture(t *testing.T, m Messenger) fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := ledger.NewService(store, nil)
	c, err := svc.AddClient("Ana", "", "")
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	return fixture{
		store:    store,
		ledger:   svc,
		pipeline: NewPipeline(svc, store, NewExtractor(m, "", 0), 2),
		client:   c,
	}
}

func pngFile(name, body string) File {
	return File{Name: name, MIMEType: MIMEPNG, Data: []byte(body)}
}

func TestSubmit_InboxDestination(t *testing.T) {
	f := newFixture(t, &scriptedMessenger{})

	results, err := f.pipeline.Submit(context.Background(), []File{pngFile("a.png", "aaa")}, ledger.DestinationInbox, ledger.Target{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("result error: %v", results[0].Err)
	}

	doc, _ := f.ledger.Document()
	if len(doc.Inbox) != 1 || len(doc.Invoices) != 0 {
		t.Fatalf("inbox=%d ledger=%d, want 1/0", len(doc.Inbox), len(doc.Invoices))
	}
	inv := doc.Inbox[0]
	if inv.Store != "Comex" || inv.Number != "A-77" || inv.Paid || inv.Notes != "" || inv.Category != "" {
		t.Errorf("materialized invoice = %+v", inv)
	}
	if inv.FileName != "a.png" || inv.FileType != MIMEPNG || inv.FileRef != "attachments/"+inv.ID.String() {
		t.Errorf("file reference = %q %q %q", inv.FileRef, inv.FileName, inv.FileType)
	}

	att, err := f.store.GetAttachment(inv.ID.String())
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if string(att.Data) != "aaa" {
		t.Errorf("attachment data = %q", att.Data)
	}
}

func TestSubmit_AssignedDestination(t *testing.T) {
	f := newFixture(t, &scriptedMessenger{})

	target := ledger.Target{ClientID: f.client.ID, Project: "Cocina"}
	results, err := f.pipeline.Submit(context.Background(), []File{pngFile("a.png", "aaa")}, ledger.DestinationAssigned, target)
	if err != nil || results[0].Err != nil {
		t.Fatalf("Submit: %v / %v", err, results[0].Err)
	}

	doc, _ := f.ledger.Document()
	if len(doc.Inbox) != 0 || len(doc.Invoices) != 1 {
		t.Fatalf("inbox=%d ledger=%d, want 0/1", len(doc.Inbox), len(doc.Invoices))
	}
	if doc.Invoices[0].ClientID != f.client.ID || doc.Invoices[0].Project != "Cocina" {
		t.Errorf("target = %s/%s", doc.Invoices[0].ClientID, doc.Invoices[0].Project)
	}
}

// TestSubmit_MalformedReplyLeavesCollectionsUnchanged verifies a parse
// failure adds nothing and keeps no attachment.
func TestSubmit_MalformedReplyLeavesCollectionsUnchanged(t *testing.T) {
	bad := "YmFk" // base64("bad")
	f := newFixture(t, &scriptedMessenger{replies: map[string]string{bad: "no es json"}})
	before, _ := f.ledger.Document()

	results, err := f.pipeline.Submit(context.Background(), []File{pngFile("bad.png", "bad")}, ledger.DestinationInbox, ledger.Target{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !errors.Is(results[0].Err, ErrParse) {
		t.Errorf("error = %v, want ErrParse", results[0].Err)
	}

	after, _ := f.ledger.Document()
	if len(after.Inbox) != len(before.Inbox) || len(after.Invoices) != len(before.Invoices) {
		t.Errorf("collections changed: before %+v after %+v", before, after)
	}
}

// TestSubmit_FilesAreIndependent verifies one failing file does not stop the others.
func TestSubmit_FilesAreIndependent(t *testing.T) {
	failing := "ZmFpbA==" // base64("fail")
	f := newFixture(t, &scriptedMessenger{errs: map[string]error{failing: &anthropic.APIError{Status: 500}}})

	files := []File{pngFile("1.png", "one"), pngFile("2.png", "fail"), pngFile("3.png", "three")}
	results, err := f.pipeline.Submit(context.Background(), files, ledger.DestinationInbox, ledger.Target{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("good files failed: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, ErrTransport) {
		t.Errorf("failing file error = %v, want ErrTransport", results[1].Err)
	}
	if results[1].FileName != "2.png" {
		t.Errorf("result order lost: %q", results[1].FileName)
	}

	inbox, _ := f.ledger.Inbox()
	if len(inbox) != 2 {
		t.Errorf("inbox size = %d, want 2", len(inbox))
	}
}

func TestSubmit_UnsupportedAndEmpty(t *testing.T) {
	m := &mockMessenger{reply: goodReply}
	f := newFixture(t, m)

	files := []File{
		{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hola")},
		{Name: "empty.png", MIMEType: MIMEPNG},
	}
	results, _ := f.pipeline.Submit(context.Background(), files, ledger.DestinationInbox, ledger.Target{})

	if !errors.Is(results[0].Err, ErrUnsupported) {
		t.Errorf("txt error = %v, want ErrUnsupported", results[0].Err)
	}
	if !errors.Is(results[1].Err, ErrRead) {
		t.Errorf("empty error = %v, want ErrRead", results[1].Err)
	}
	if m.calls != 0 {
		t.Errorf("service called %d times for rejected files", m.calls)
	}
}

// TestSubmit_RouteFailureRemovesAttachment verifies an unknown client
// leaves no orphaned attachment behind.
func TestSubmit_RouteFailureRemovesAttachment(t *testing.T) {
	f := newFixture(t, &scriptedMessenger{})
	rec := &recordingAttachments{AttachmentStore: f.store}
	f.pipeline.attachments = rec

	results, _ := f.pipeline.Submit(context.Background(), []File{pngFile("a.png", "aaa")}, ledger.DestinationAssigned, ledger.Target{ClientID: "ghost"})
	if !errors.Is(results[0].Err, ledger.ErrNotFound) {
		t.Fatalf("error = %v, want ledger.ErrNotFound", results[0].Err)
	}

	doc, _ := f.ledger.Document()
	if n := len(doc.Invoices) + len(doc.Inbox); n != 0 {
		t.Errorf("invoices stored after failed route: %d", n)
	}
	if len(rec.saved) != 1 || len(rec.deleted) != 1 || rec.saved[0] != rec.deleted[0] {
		t.Fatalf("saved %v deleted %v, want the same single id", rec.saved, rec.deleted)
	}
	if _, err := f.store.GetAttachment(rec.saved[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("attachment still stored: %v", err)
	}
}

type recordingAttachments struct {
	AttachmentStore
	saved, deleted []string
}

func (r *recordingAttachments) SaveAttachment(a storage.Attachment) error {
	r.saved = append(r.saved, a.ID)
	return r.AttachmentStore.SaveAttachment(a)
}

func (r *recordingAttachments) DeleteAttachment(id string) error {
	r.deleted = append(r.deleted, id)
	return r.AttachmentStore.DeleteAttachment(id)
}

func TestSubmit_Busy(t *testing.T) {
	m := &scriptedMessenger{block: make(chan struct{})}
	f := newFixture(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.pipeline.Submit(context.Background(), []File{pngFile("slow.png", "slow")}, ledger.DestinationInbox, ledger.Target{})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !f.pipeline.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never became busy")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := f.pipeline.Submit(context.Background(), []File{pngFile("b.png", "b")}, ledger.DestinationInbox, ledger.Target{})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Submit error = %v, want ErrBusy", err)
	}

	close(m.block)
	<-done
	if f.pipeline.Busy() {
		t.Error("pipeline still busy after submission finished")
	}
}

func TestReadFileAndDetectMIME(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.JPG")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if f.Name != "ticket.JPG" || f.MIMEType != MIMEJPEG {
		t.Errorf("file = %q %q", f.Name, f.MIMEType)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.pdf")); !errors.Is(err, ErrRead) {
		t.Errorf("missing file error = %v, want ErrRead", err)
	}

	if got := DetectMIME("scan", "", []byte("%PDF-1.7\n")); got != MIMEPDF {
		t.Errorf("sniffed = %q, want %q", got, MIMEPDF)
	}
	if got := DetectMIME("x.bin", "image/png; charset=binary", nil); got != MIMEPNG {
		t.Errorf("declared = %q, want %q", got, MIMEPNG)
	}
}

func TestPDFPageCountMalformed(t *testing.T) {
	if _, err := pdfPageCount([]byte("not a pdf")); err == nil {
		t.Error("expected error for malformed pdf")
	}
}

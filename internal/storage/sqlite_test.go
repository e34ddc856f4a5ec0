package storage

import (
	"bytes"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same directory and verifies
// the schema version is unchanged and clean.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, dirty, err := s1.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if dirty {
		t.Error("schema dirty after first Open")
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, _, err := s2.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v1 != v2 {
		t.Errorf("schema version changed: %d -> %d", v1, v2)
	}
	if v1 < 1 {
		t.Errorf("schema version = %d, want >= 1", v1)
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"documents", "attachments"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %q not found in sqlite_master", table)
		}
	}
}

func TestLoadDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadDocument("missing")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestSaveDocumentOverwrites verifies the whole body is replaced on every save.
func TestSaveDocumentOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDocument("gestorGastos", []byte(`{"clientes":[{"id":"1"}]}`)); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	want := []byte(`{"clientes":[],"facturas":[],"bandejaEntrada":[]}`)
	if err := s.SaveDocument("gestorGastos", want); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.LoadDocument("gestorGastos")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("body = %s, want %s", got, want)
	}

	var rows int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("documents rows = %d, want 1", rows)
	}

	if _, err := s.DocumentUpdatedAt("gestorGastos"); err != nil {
		t.Errorf("DocumentUpdatedAt: %v", err)
	}
}

// TestDocumentSurvivesReopen verifies the document persists on disk.
func TestDocumentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.SaveDocument("gestorGastos", []byte(`{"facturas":[]}`)); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.LoadDocument("gestorGastos")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if string(got) != `{"facturas":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Attachment{
		ID:        "att-1",
		Name:      "ticket.pdf",
		MIMEType:  "application/pdf",
		Data:      []byte("%PDF-1.4 fake"),
		CreatedAt: now,
	}
	if err := s.SaveAttachment(want); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}

	got, err := s.GetAttachment("att-1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if got.Name != want.Name || got.MIMEType != want.MIMEType {
		t.Errorf("got name=%q mime=%q, want name=%q mime=%q", got.Name, got.MIMEType, want.Name, want.MIMEType)
	}
	if !bytes.Equal(got.Data, want.Data) {
		t.Errorf("Data = %q, want %q", got.Data, want.Data)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	if err := s.DeleteAttachment("att-1"); err != nil {
		t.Fatalf("DeleteAttachment: %v", err)
	}
	if _, err := s.GetAttachment("att-1"); err != ErrNotFound {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteAttachment("att-1"); err != ErrNotFound {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

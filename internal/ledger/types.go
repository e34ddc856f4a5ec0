package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DocumentKey is the storage key the whole document is persisted under.
const DocumentKey = "gestorGastos"

// Destination tells the intake pipeline where a new invoice goes.
type Destination string

const (
	DestinationInbox    Destination = "inbox"
	DestinationAssigned Destination = "assigned"
)

// ParseDestination accepts the canonical names plus the short forms used by the CLI.
func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbox", "bandeja":
		return DestinationInbox, nil
	case "assigned", "asignada", "ledger", "":
		return DestinationAssigned, nil
	}
	return "", fmt.Errorf("unknown destination %q", s)
}

// ID identifies clients and invoices. Older documents store numeric ids,
// so it unmarshals from a JSON number or string and always marshals as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Client is someone the operator bills. Clients are never edited or deleted.
type Client struct {
	ID    ID     `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
	Phone string `json:"telefono"`
}

// Invoice is one expense document. Inbox invoices have no ClientID/Project.
type Invoice struct {
	ID       ID       `json:"id"`
	Store    string   `json:"tienda"`
	Date     string   `json:"fecha"`
	Total    Amount   `json:"total"`
	Items    []string `json:"items"`
	Number   string   `json:"numeroFactura"`
	Paid     bool     `json:"pagada"`
	Notes    string   `json:"notas"`
	Category string   `json:"categoria"`
	FileRef  string   `json:"archivoUrl,omitempty"`
	FileName string   `json:"nombreArchivo,omitempty"`
	FileType string   `json:"tipoArchivo,omitempty"`
	ClientID ID       `json:"cliente,omitempty"`
	Project  string   `json:"proyecto,omitempty"`
}

// IsPDF reports whether the attached file is a PDF.
func (inv Invoice) IsPDF() bool {
	return strings.Contains(inv.FileType, "pdf")
}

// AttachmentPrefix prefixes FileRef for files kept in the attachment store.
const AttachmentPrefix = "attachments/"

// AttachmentID returns the stored file id, or "" when the invoice has no file
// in the attachment store (including imported browser object URLs).
func (inv Invoice) AttachmentID() string {
	id, ok := strings.CutPrefix(inv.FileRef, AttachmentPrefix)
	if !ok {
		return ""
	}
	return id
}

// Document is everything the tool persists, stored as one JSON value.
type Document struct {
	Clients  []Client  `json:"clientes"`
	Invoices []Invoice `json:"facturas"`
	Inbox    []Invoice `json:"bandejaEntrada"`
}

// Clone returns a deep copy so callers can mutate it freely.
func (d Document) Clone() Document {
	out := Document{
		Clients:  append([]Client(nil), d.Clients...),
		Invoices: cloneInvoices(d.Invoices),
		Inbox:    cloneInvoices(d.Inbox),
	}
	return out
}

func cloneInvoices(in []Invoice) []Invoice {
	if in == nil {
		return nil
	}
	out := make([]Invoice, len(in))
	for i, inv := range in {
		out[i] = inv
		if inv.Items != nil {
			out[i].Items = append([]string{}, inv.Items...)
		}
	}
	return out
}

// Invoice fields the operator may edit one at a time.
const (
	FieldStore    = "store"
	FieldDate     = "date"
	FieldTotal    = "total"
	FieldNumber   = "number"
	FieldCategory = "category"
	FieldNotes    = "notes"
	FieldPaid     = "paid"
	FieldProject  = "project"
)

// EditableFields lists the field names accepted by UpdateInvoice.
var EditableFields = []string{FieldStore, FieldDate, FieldTotal, FieldNumber, FieldCategory, FieldNotes, FieldPaid, FieldProject}

// setField applies a single textual edit to inv.
func setField(inv *Invoice, field, value string) error {
	switch field {
	case FieldStore, "tienda":
		inv.Store = value
	case FieldDate, "fecha":
		inv.Date = value
	case FieldTotal:
		inv.Total = ParseAmount(value)
	case FieldNumber, "numeroFactura":
		inv.Number = value
	case FieldCategory, "categoria":
		inv.Category = value
	case FieldNotes, "notas":
		inv.Notes = value
	case FieldPaid, "pagada":
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: paid must be true or false", ErrInvalidField)
		}
		inv.Paid = b
	case FieldProject, "proyecto":
		inv.Project = value
	default:
		return fmt.Errorf("%w: %q (valid: %s)", ErrInvalidField, field, strings.Join(EditableFields, ", "))
	}
	return nil
}

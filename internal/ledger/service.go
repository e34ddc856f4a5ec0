package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kalambet/gastos/internal/events"
	"github.com/kalambet/gastos/internal/storage"
)

var (
	// ErrNotFound is returned when a client or invoice id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidField is returned for unknown or malformed invoice edits.
	ErrInvalidField = errors.New("invalid field")
	// ErrInvalidClient is returned when a client is missing required data.
	ErrInvalidClient = errors.New("invalid client")
)

// DocumentStore persists the serialized document under a single key.
// Implemented by storage.Store.
type DocumentStore interface {
	LoadDocument(key string) ([]byte, error)
	SaveDocument(key string, body []byte) error
}

// Target is the client/project an invoice is filed under.
type Target struct {
	ClientID ID
	Project  string
}

// Service owns the document. Every mutation reloads the latest persisted
// snapshot, applies one change and overwrites the whole document.
type Service struct {
	store  DocumentStore
	events events.Publisher
	now    func() time.Time
	logger *slog.Logger

	mu           sync.Mutex
	lastClientID int64
}

// NewService creates a Service. A nil publisher disables change events.
func NewService(store DocumentStore, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:  store,
		events: pub,
		now:    time.Now,
		logger: slog.Default(),
	}
}

func (s *Service) load() (Document, error) {
	body, err := s.store.LoadDocument(DocumentKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

func (s *Service) save(doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := s.store.SaveDocument(DocumentKey, body); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// update runs fn against the latest snapshot and persists the result.
// Nothing is written when fn fails.
func (s *Service) update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ev.Timestamp = s.now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publishing event failed", "type", ev.Type, "invoice_id", ev.InvoiceID, "error", err)
	}
}

// Document returns a snapshot of everything persisted.
func (s *Service) Document() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Import replaces the whole document, e.g. with an export from another machine.
func (s *Service) Import(doc Document) error {
	return s.update(func(d *Document) error {
		*d = doc.Clone()
		return nil
	})
}

// --- Clients ---

func (s *Service) Clients() ([]Client, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return doc.Clients, nil
}

func (s *Service) Client(id ID) (Client, error) {
	doc, err := s.Document()
	if err != nil {
		return Client{}, err
	}
	c, ok := findClient(doc, id)
	if !ok {
		return Client{}, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func findClient(doc Document, id ID) (Client, bool) {
	for _, c := range doc.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

// AddClient registers a client. The id derives from the creation time in
// milliseconds and is bumped until it is unique.
func (s *Service) AddClient(name, email, phone string) (Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Client{}, fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	var created Client
	err := s.update(func(doc *Document) error {
		id := s.now().UnixMilli()
		if id <= s.lastClientID {
			id = s.lastClientID + 1
		}
		for {
			if _, taken := findClient(*doc, ID(strconv.FormatInt(id, 10))); !taken {
				break
			}
			id++
		}
		s.lastClientID = id
		created = Client{
			ID:    ID(strconv.FormatInt(id, 10)),
			Name:  name,
			Email: strings.TrimSpace(email),
			Phone: strings.TrimSpace(phone),
		}
		doc.Clients = append(doc.Clients, created)
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return created, nil
}

// --- Ledger ---

// FilterInvoices returns the invoices filed under clientID and, when project
// is non-empty, under that project.
func FilterInvoices(invoices []Invoice, clientID ID, project string) []Invoice {
	var out []Invoice
	for _, inv := range invoices {
		if inv.ClientID != clientID {
			continue
		}
		if project != "" && inv.Project != project {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// Invoices returns the ledger of one client, optionally narrowed to a project.
func (s *Service) Invoices(clientID ID, project string) ([]Invoice, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return FilterInvoices(doc.Invoices, clientID, project), nil
}

func indexOf(invoices []Invoice, id ID) int {
	for i, inv := range invoices {
		if inv.ID == id {
			return i
		}
	}
	return -1
}

// NewInvoiceID returns a fresh invoice identifier.
func NewInvoiceID() ID {
	return ID(uuid.New().String())
}

// AddManualInvoice files an empty invoice dated today (UTC) for the operator to fill in.
func (s *Service) AddManualInvoice(target Target) (Invoice, error) {
	var created Invoice
	err := s.update(func(doc *Document) error {
		if _, ok := findClient(*doc, target.ClientID); !ok {
			return fmt.Errorf("client %s: %w", target.ClientID, ErrNotFound)
		}
		created = Invoice{
			ID:       NewInvoiceID(),
			ClientID: target.ClientID,
			Project:  target.Project,
			Date:     s.now().UTC().Format("2006-01-02"),
			Total:    NewAmount(decimal.Zero),
			Items:    []string{},
		}
		doc.Invoices = append(doc.Invoices, created)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// UpdateInvoice changes one field of a ledger invoice.
func (s *Service) UpdateInvoice(id ID, field, value string) (Invoice, error) {
	var updated Invoice
	err := s.update(func(doc *Document) error {
		i := indexOf(doc.Invoices, id)
		if i < 0 {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		inv := doc.Invoices[i]
		if err := setField(&inv, strings.ToLower(strings.TrimSpace(field)), value); err != nil {
			return err
		}
		doc.Invoices[i] = inv
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// TogglePaid flips the paid flag of a ledger invoice.
func (s *Service) TogglePaid(id ID) (Invoice, error) {
	var updated Invoice
	err := s.update(func(doc *Document) error {
		i := indexOf(doc.Invoices, id)
		if i < 0 {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		doc.Invoices[i].Paid = !doc.Invoices[i].Paid
		updated = doc.Invoices[i]
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// DeleteInvoice removes a ledger invoice and returns it.
func (s *Service) DeleteInvoice(ctx context.Context, id ID) (Invoice, error) {
	var removed Invoice
	err := s.update(func(doc *Document) error {
		i := indexOf(doc.Invoices, id)
		if i < 0 {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		removed = doc.Invoices[i]
		doc.Invoices = append(doc.Invoices[:i], doc.Invoices[i+1:]...)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.publish(ctx, events.Event{
		Type:      events.TypeInvoiceDeleted,
		InvoiceID: removed.ID.String(),
		ClientID:  removed.ClientID.String(),
		Project:   removed.Project,
	})
	return removed, nil
}

// --- Inbox ---

func (s *Service) Inbox() ([]Invoice, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return doc.Inbox, nil
}

// DeleteInboxInvoice removes an unclassified invoice and returns it.
func (s *Service) DeleteInboxInvoice(ctx context.Context, id ID) (Invoice, error) {
	var removed Invoice
	err := s.update(func(doc *Document) error {
		i := indexOf(doc.Inbox, id)
		if i < 0 {
			return fmt.Errorf("inbox invoice %s: %w", id, ErrNotFound)
		}
		removed = doc.Inbox[i]
		doc.Inbox = append(doc.Inbox[:i], doc.Inbox[i+1:]...)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeInvoiceDeleted,
		InvoiceID:   removed.ID.String(),
		Destination: string(DestinationInbox),
	})
	return removed, nil
}

// AssignInbox moves an inbox invoice into a client's ledger.
func (s *Service) AssignInbox(ctx context.Context, id ID, target Target) (Invoice, error) {
	var assigned Invoice
	err := s.update(func(doc *Document) error {
		i := indexOf(doc.Inbox, id)
		if i < 0 {
			return fmt.Errorf("inbox invoice %s: %w", id, ErrNotFound)
		}
		if _, ok := findClient(*doc, target.ClientID); !ok {
			return fmt.Errorf("client %s: %w", target.ClientID, ErrNotFound)
		}
		assigned = doc.Inbox[i]
		assigned.ClientID = target.ClientID
		assigned.Project = target.Project
		doc.Invoices = append(doc.Invoices, assigned)
		doc.Inbox = append(doc.Inbox[:i], doc.Inbox[i+1:]...)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.publish(ctx, events.Event{
		Type:      events.TypeInvoiceAssigned,
		InvoiceID: assigned.ID.String(),
		ClientID:  assigned.ClientID.String(),
		Project:   assigned.Project,
	})
	return assigned, nil
}

// Route files a freshly extracted invoice either in the inbox or, tagged
// with the target client and project, in the ledger.
func (s *Service) Route(ctx context.Context, inv Invoice, dest Destination, target Target) (Invoice, error) {
	err := s.update(func(doc *Document) error {
		switch dest {
		case DestinationInbox:
			inv.ClientID = ""
			inv.Project = ""
			doc.Inbox = append(doc.Inbox, inv)
		case DestinationAssigned:
			if _, ok := findClient(*doc, target.ClientID); !ok {
				return fmt.Errorf("client %s: %w", target.ClientID, ErrNotFound)
			}
			inv.ClientID = target.ClientID
			inv.Project = target.Project
			doc.Invoices = append(doc.Invoices, inv)
		default:
			return fmt.Errorf("unknown destination %q", dest)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeInvoiceExtracted,
		InvoiceID:   inv.ID.String(),
		ClientID:    inv.ClientID.String(),
		Project:     inv.Project,
		Destination: string(dest),
	})
	return inv, nil
}

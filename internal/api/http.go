package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/gastos/internal/intake"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/report"
	"github.com/kalambet/gastos/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxIntakeBodySize  = 64 << 20 // 64MB
	maxIntakeMemory    = 16 << 20
)

// AttachmentStore serves the original invoice files.
type AttachmentStore interface {
	GetAttachment(id string) (storage.Attachment, error)
	DeleteAttachment(id string) error
}

type AppDeps struct {
	Ledger      *ledger.Service
	Pipeline    *intake.Pipeline // optional; if nil, /intake answers 503
	Attachments AttachmentStore
	Token       string
	Now         func() time.Time
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/clients", handleListClients(deps))
		r.Post("/clients", handleAddClient(deps))

		r.Get("/invoices", handleListInvoices(deps))
		r.Post("/invoices", handleAddInvoice(deps))
		r.Patch("/invoices/{id}", handleUpdateInvoice(deps))
		r.Delete("/invoices/{id}", handleDeleteInvoice(deps))
		r.Post("/invoices/{id}/paid", handleTogglePaid(deps))

		r.Get("/inbox", handleListInbox(deps))
		r.Post("/inbox/{id}/assign", handleAssignInbox(deps))
		r.Delete("/inbox/{id}", handleDeleteInbox(deps))

		r.Post("/intake", handleIntake(deps))
		r.Get("/attachments/{id}", handleGetAttachment(deps))
		r.Get("/report", handleReport(deps))
		r.Get("/document", handleGetDocument(deps))
	})

	return r
}

// handleHealth also reports the intake state: disabled, idle or busy.
func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := "disabled"
		switch {
		case deps.Pipeline == nil:
		case deps.Pipeline.Busy():
			state = "busy"
		default:
			state = "idle"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "intake": state})
	}
}

// --- Clients ---

type addClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func handleListClients(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := deps.Ledger.Clients()
		if err != nil {
			ledgerError(w, err)
			return
		}
		if clients == nil {
			clients = []ledger.Client{}
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

func handleAddClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addClientRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := deps.Ledger.AddClient(req.Name, req.Email, req.Phone)
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// --- Invoices ---

type targetRequest struct {
	Client  string `json:"client"`
	Project string `json:"project"`
}

type updateInvoiceRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func handleListInvoices(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := r.URL.Query().Get("client")
		if client == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client is required")
			return
		}
		if _, err := deps.Ledger.Client(ledger.ID(client)); err != nil {
			ledgerError(w, err)
			return
		}
		invoices, err := deps.Ledger.Invoices(ledger.ID(client), r.URL.Query().Get("project"))
		if err != nil {
			ledgerError(w, err)
			return
		}
		if invoices == nil {
			invoices = []ledger.Invoice{}
		}
		writeJSON(w, http.StatusOK, invoices)
	}
}

func handleAddInvoice(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req targetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Client == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client is required")
			return
		}
		inv, err := deps.Ledger.AddManualInvoice(ledger.Target{ClientID: ledger.ID(req.Client), Project: req.Project})
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
	}
}

func handleUpdateInvoice(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateInvoiceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		inv, err := deps.Ledger.UpdateInvoice(ledger.ID(chi.URLParam(r, "id")), req.Field, req.Value)
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

func handleDeleteInvoice(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := deps.Ledger.DeleteInvoice(r.Context(), ledger.ID(chi.URLParam(r, "id")))
		if err != nil {
			ledgerError(w, err)
			return
		}
		dropAttachment(deps, inv)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleTogglePaid(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := deps.Ledger.TogglePaid(ledger.ID(chi.URLParam(r, "id")))
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

// --- Inbox ---

func handleListInbox(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inbox, err := deps.Ledger.Inbox()
		if err != nil {
			ledgerError(w, err)
			return
		}
		if inbox == nil {
			inbox = []ledger.Invoice{}
		}
		writeJSON(w, http.StatusOK, inbox)
	}
}

func handleAssignInbox(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req targetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Client == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client is required")
			return
		}
		inv, err := deps.Ledger.AssignInbox(r.Context(), ledger.ID(chi.URLParam(r, "id")),
			ledger.Target{ClientID: ledger.ID(req.Client), Project: req.Project})
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

func handleDeleteInbox(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := deps.Ledger.DeleteInboxInvoice(r.Context(), ledger.ID(chi.URLParam(r, "id")))
		if err != nil {
			ledgerError(w, err)
			return
		}
		dropAttachment(deps, inv)
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- Intake ---

type intakeResult struct {
	File    string          `json:"file"`
	Invoice *ledger.Invoice `json:"invoice,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func handleIntake(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pipeline == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable_error", "invoice extraction is not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxIntakeBodySize)
		if err := r.ParseMultipartForm(maxIntakeMemory); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		dest, err := ledger.ParseDestination(r.FormValue("destination"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		target := ledger.Target{ClientID: ledger.ID(r.FormValue("client")), Project: r.FormValue("project")}
		if dest == ledger.DestinationAssigned && target.ClientID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client is required for assigned invoices")
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one file is required")
			return
		}

		files := make([]intake.File, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				slog.Error("invoice intake failed", "file", fh.Filename, "error", err)
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", fh.Filename, err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				slog.Error("invoice intake failed", "file", fh.Filename, "error", err)
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", fh.Filename, err)
				return
			}
			files = append(files, intake.File{
				Name:     fh.Filename,
				MIMEType: intake.DetectMIME(fh.Filename, fh.Header.Get("Content-Type"), data),
				Data:     data,
			})
		}

		results, err := deps.Pipeline.Submit(r.Context(), files, dest, target)
		if errors.Is(err, intake.ErrBusy) {
			httpError(w, http.StatusConflict, "conflict_error", "another upload is still being processed")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
			return
		}

		out := make([]intakeResult, len(results))
		for i, res := range results {
			out[i] = intakeResult{File: res.FileName}
			if res.Err != nil {
				out[i].Error = intake.UserMessage
				continue
			}
			inv := res.Invoice
			out[i].Invoice = &inv
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetAttachment(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Attachments.GetAttachment(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "attachment not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
			return
		}
		w.Header().Set("Content-Type", a.MIMEType)
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.Name))
		w.Write(a.Data)
	}
}

func dropAttachment(deps AppDeps, inv ledger.Invoice) {
	id := inv.AttachmentID()
	if id == "" {
		return
	}
	if err := deps.Attachments.DeleteAttachment(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("removing attachment failed", "invoice_id", inv.ID, "error", err)
	}
}

// --- Report ---

func handleReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		client := q.Get("client")
		if client == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client is required")
			return
		}
		doc, err := deps.Ledger.Document()
		if err != nil {
			ledgerError(w, err)
			return
		}
		s := report.Build(doc, ledger.ID(client), q.Get("project"), deps.now())
		if s.Client == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "client %s not found", client)
			return
		}

		switch q.Get("format") {
		case "", "html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := report.RenderHTML(w, s); err != nil {
				httpError(w, http.StatusInternalServerError, "server_error", "rendering report: %v", err)
			}
		case "pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(s, "pdf")))
			if err := report.RenderPDF(w, s); err != nil {
				httpError(w, http.StatusInternalServerError, "server_error", "rendering report: %v", err)
			}
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "format must be html or pdf")
		}
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Ledger.Document()
		if err != nil {
			ledgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func ledgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, ledger.ErrInvalidField), errors.Is(err, ledger.ErrInvalidClient):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

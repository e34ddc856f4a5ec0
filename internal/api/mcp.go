package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/report"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ledger *ledger.Service
	Now    func() time.Time // defaults to time.Now
}

func (d MCPDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewMCPServer creates an MCP server exposing the client ledgers and inbox.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"gastos",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("gastos tracks expense invoices per client and project. Amounts are in dollars."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_clients",
			mcp.WithDescription("List every registered client with its id."),
		),
		mcpListClients(deps),
	)

	s.AddTool(
		mcp.NewTool("list_invoices",
			mcp.WithDescription("List the invoices filed under a client, optionally narrowed to one project."),
			mcp.WithString("client", mcp.Description("Client id"), mcp.Required()),
			mcp.WithString("project", mcp.Description("Project name")),
		),
		mcpListInvoices(deps),
	)

	s.AddTool(
		mcp.NewTool("list_inbox",
			mcp.WithDescription("List invoices waiting in the inbox to be assigned to a client."),
		),
		mcpListInbox(deps),
	)

	s.AddTool(
		mcp.NewTool("billing_summary",
			mcp.WithDescription("Pending, paid and general totals for a client, optionally for one project."),
			mcp.WithString("client", mcp.Description("Client id"), mcp.Required()),
			mcp.WithString("project", mcp.Description("Project name")),
		),
		mcpBillingSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("assign_inbox_invoice",
			mcp.WithDescription("Move an inbox invoice into a client's ledger."),
			mcp.WithString("id", mcp.Description("Inbox invoice id"), mcp.Required()),
			mcp.WithString("client", mcp.Description("Client id"), mcp.Required()),
			mcp.WithString("project", mcp.Description("Project name")),
		),
		mcpAssignInbox(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_paid",
			mcp.WithDescription("Flip the paid flag of a ledger invoice."),
			mcp.WithString("id", mcp.Description("Invoice id"), mcp.Required()),
		),
		mcpTogglePaid(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"gastos://clients",
			"Clients",
			mcp.WithResourceDescription("Registered clients as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceClients(deps),
	)

	return s
}

func mcpListClients(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clients, err := deps.Ledger.Clients()
		if err != nil {
			return mcpError(fmt.Sprintf("listing clients failed: %v", err)), nil
		}
		if len(clients) == 0 {
			return mcpText("No clients registered."), nil
		}
		return mcpJSON(clients)
	}
}

func mcpListInvoices(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		client, err := req.RequireString("client")
		if err != nil {
			return mcpError("client is required"), nil
		}
		if _, err := deps.Ledger.Client(ledger.ID(client)); err != nil {
			return mcpError(err.Error()), nil
		}
		invoices, err := deps.Ledger.Invoices(ledger.ID(client), req.GetString("project", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("listing invoices failed: %v", err)), nil
		}
		if len(invoices) == 0 {
			return mcpText("No invoices found."), nil
		}
		return mcpJSON(invoices)
	}
}

func mcpListInbox(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inbox, err := deps.Ledger.Inbox()
		if err != nil {
			return mcpError(fmt.Sprintf("listing inbox failed: %v", err)), nil
		}
		if len(inbox) == 0 {
			return mcpText("The inbox is empty."), nil
		}
		return mcpJSON(inbox)
	}
}

func mcpBillingSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		client, err := req.RequireString("client")
		if err != nil {
			return mcpError("client is required"), nil
		}
		doc, err := deps.Ledger.Document()
		if err != nil {
			return mcpError(fmt.Sprintf("loading document failed: %v", err)), nil
		}
		s := report.Build(doc, ledger.ID(client), req.GetString("project", ""), deps.now())
		if s.Client == nil {
			return mcpError(fmt.Sprintf("client %s not found", client)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Client: %s\n", s.ClientName())
		if s.Project != "" {
			fmt.Fprintf(&b, "Project: %s\n", s.Project)
		}
		fmt.Fprintf(&b, "Pending: %s (%d invoices)\n", report.Money(s.TotalPending), len(s.Pending))
		fmt.Fprintf(&b, "Paid: %s (%d invoices)\n", report.Money(s.TotalPaid), len(s.Paid))
		fmt.Fprintf(&b, "Total: %s", report.Money(s.TotalGeneral))
		return mcpText(b.String()), nil
	}
}

func mcpAssignInbox(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		client, err := req.RequireString("client")
		if err != nil {
			return mcpError("client is required"), nil
		}
		inv, err := deps.Ledger.AssignInbox(ctx, ledger.ID(id), ledger.Target{
			ClientID: ledger.ID(client),
			Project:  req.GetString("project", ""),
		})
		if errors.Is(err, ledger.ErrNotFound) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("assigning invoice failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Assigned invoice %s to client %s", inv.ID, inv.ClientID)), nil
	}
}

func mcpTogglePaid(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		inv, err := deps.Ledger.TogglePaid(ledger.ID(id))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		state := "pending"
		if inv.Paid {
			state = "paid"
		}
		return mcpText(fmt.Sprintf("Invoice %s is now %s", inv.ID, state)), nil
	}
}

func mcpResourceClients(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		clients, err := deps.Ledger.Clients()
		if err != nil {
			return nil, fmt.Errorf("failed to list clients: %w", err)
		}
		if clients == nil {
			clients = []ledger.Client{}
		}
		b, err := json.Marshal(clients)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal clients: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

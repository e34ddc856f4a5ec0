package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/gastos/internal/api"
	"github.com/kalambet/gastos/internal/config"
	"github.com/kalambet/gastos/internal/events"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ledger to MCP clients over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gastos status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// ensureAPIToken returns the configured token, generating and storing one
// on first use.
func ensureAPIToken(c config.Config) (string, bool, error) {
	if c.Server.APIToken != "" {
		return c.Server.APIToken, false, nil
	}
	token := uuid.NewString()
	if err := config.SaveSecret("server.api_token", token); err != nil {
		return "", false, fmt.Errorf("saving API token: %w", err)
	}
	return token, true, nil
}

func runServer(parent context.Context) error {
	fmt.Fprintf(os.Stderr, "gastos version %s\n", version)

	token, generated, err := ensureAPIToken(cfg)
	if err != nil {
		return err
	}
	if generated {
		printWarning("Generated API token: %s", token)
	}

	// Refuse to start twice on the same port.
	if newAPIClient(cfg).healthy(parent) {
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	withIntake := config.RequireAPIKey(cfg) == nil
	if !withIntake {
		printWarning("Anthropic API key not set: POST /intake is disabled")
	}

	a, err := openApp(cfg, withIntake)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing app", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewAppHandler(api.AppDeps{
		Ledger:      a.ledger,
		Pipeline:    a.pipeline,
		Attachments: a.store,
		Token:       token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gastos listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(parent context.Context) error {
	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Ledger: a.ledger}, version)
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	client := newAPIClient(cfg)

	var doc ledger.Document
	h, err := client.health(ctx)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		printStatus("Intake", "%s", h.Intake)
		resp, err := client.get(ctx, "/document")
		if err == nil {
			if err := decodeJSON(resp, &doc); err != nil {
				printWarning("could not read document: %v", err)
			}
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if doc.Clients == nil && doc.Invoices == nil && doc.Inbox == nil {
		// Server not reachable: read the local store directly.
		doc, err = ledger.NewService(store, nil).Document()
		if err != nil {
			return err
		}
	}

	printStatus("Clients", "%d", len(doc.Clients))
	printStatus("Invoices", "%d", len(doc.Invoices))
	printStatus("Inbox", "%d", len(doc.Inbox))
	if config.RequireAPIKey(cfg) == nil {
		printStatus("Extraction", "%s", cfg.Anthropic.Model)
	} else {
		printStatus("Extraction", "disabled (no API key)")
	}
	if cfg.Events.AMQPURL != "" {
		printStatus("Events", "exchange %s, queue %s", cfg.Events.Exchange, cfg.Events.Queue)
	}
	schema, saved := describeStore(store)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Schema", "%s", schema)
	printStatus("Last saved", "%s", saved)
	return nil
}

// describeStore returns the schema version and the time the document was
// last written, both ready for display.
func describeStore(store *storage.Store) (schema, saved string) {
	switch v, dirty, err := store.SchemaVersion(); {
	case err != nil:
		schema = "unknown (" + err.Error() + ")"
	case dirty:
		schema = fmt.Sprintf("v%d (dirty)", v)
	default:
		schema = fmt.Sprintf("v%d", v)
	}

	switch t, err := store.DocumentUpdatedAt(ledger.DocumentKey); {
	case errors.Is(err, storage.ErrNotFound):
		saved = "never"
	case err != nil:
		saved = "unknown (" + err.Error() + ")"
	default:
		saved = t.Local().Format(time.DateTime)
	}
	return schema, saved
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow invoice change events",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print invoice events from the configured queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Events.AMQPURL == "" {
			return fmt.Errorf("events.amqp_url is not set")
		}
		pub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.Queue)
		if err != nil {
			return err
		}
		defer pub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err = pub.Consume(ctx, func(ev events.Event) error {
			fmt.Fprintf(out, "%s  %s  %s", ev.Timestamp.Local().Format(time.DateTime), colorize(colorCyan, ev.Type), ev.InvoiceID)
			if ev.ClientID != "" {
				fmt.Fprintf(out, "  client=%s", ev.ClientID)
			}
			if ev.Project != "" {
				fmt.Fprintf(out, "  project=%s", ev.Project)
			}
			fmt.Fprintln(out)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	eventsCmd.AddCommand(eventsWatchCmd)
}

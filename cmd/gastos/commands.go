package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/gastos/internal/config"
	"github.com/kalambet/gastos/internal/ledger"
	"github.com/kalambet/gastos/internal/storage"
)

// resolveClient accepts a client id or, failing that, an exact
// case-insensitive name.
func resolveClient(svc *ledger.Service, ref string) (ledger.Client, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ledger.Client{}, fmt.Errorf("--client is required")
	}
	clients, err := svc.Clients()
	if err != nil {
		return ledger.Client{}, err
	}
	for _, c := range clients {
		if c.ID.String() == ref {
			return c, nil
		}
	}
	for _, c := range clients {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return ledger.Client{}, fmt.Errorf("client %q: %w", ref, ledger.ErrNotFound)
}

// confirm asks before destructive commands unless --yes was given.
func confirm(cmd *cobra.Command, prompt string) bool {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true
	}
	return false
}

func findInvoice(doc ledger.Document, id ledger.ID) (ledger.Invoice, bool) {
	for _, inv := range doc.Invoices {
		if inv.ID == id {
			return inv, true
		}
	}
	for _, inv := range doc.Inbox {
		if inv.ID == id {
			return inv, true
		}
	}
	return ledger.Invoice{}, false
}

// --- client ---

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage clients",
}

var clientAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a client",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.ledger.AddClient(strings.Join(args, " "), email, phone)
		if err != nil {
			return err
		}
		printSuccess("Added client %s (%s)", c.Name, c.ID)
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		clients, err := a.ledger.Clients()
		if err != nil {
			return err
		}
		if len(clients) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No clients registered.")
			return nil
		}
		printClients(cmd.OutOrStdout(), clients)
		return nil
	},
}

func init() {
	clientAddCmd.Flags().String("email", "", "contact email")
	clientAddCmd.Flags().String("phone", "", "contact phone")
	clientCmd.AddCommand(clientAddCmd)
	clientCmd.AddCommand(clientListCmd)
}

// --- invoice ---

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Manage a client's invoices",
}

var invoiceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an empty invoice dated today to fill in by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientRef, _ := cmd.Flags().GetString("client")
		project, _ := cmd.Flags().GetString("project")

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := resolveClient(a.ledger, clientRef)
		if err != nil {
			return err
		}
		inv, err := a.ledger.AddManualInvoice(ledger.Target{ClientID: c.ID, Project: project})
		if err != nil {
			return err
		}
		printSuccess("Added invoice %s for %s", inv.ID, c.Name)
		printStep("Fill it in with: gastos invoice set %s <field> <value>", inv.ID)
		return nil
	},
}

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a client's invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientRef, _ := cmd.Flags().GetString("client")
		project, _ := cmd.Flags().GetString("project")

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := resolveClient(a.ledger, clientRef)
		if err != nil {
			return err
		}
		invoices, err := a.ledger.Invoices(c.ID, project)
		if err != nil {
			return err
		}
		if len(invoices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No invoices found.")
			return nil
		}
		printInvoices(cmd.OutOrStdout(), invoices, false)
		return nil
	},
}

var invoiceSetCmd = &cobra.Command{
	Use:   "set <id> <field> <value>",
	Short: "Edit one field of an invoice",
	Long: `Edit one field of an invoice.

Fields: ` + strings.Join(ledger.EditableFields, ", "),
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.ledger.UpdateInvoice(ledger.ID(args[0]), args[1], args[2]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[1], args[2])
		return nil
	},
}

var invoicePaidCmd = &cobra.Command{
	Use:   "paid <id>",
	Short: "Toggle the paid state of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		inv, err := a.ledger.TogglePaid(ledger.ID(args[0]))
		if err != nil {
			return err
		}
		if inv.Paid {
			printSuccess("Invoice %s marked as paid", inv.ID)
		} else {
			printSuccess("Invoice %s marked as pending", inv.ID)
		}
		return nil
	},
}

var invoiceDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "¿Eliminar esta factura?") {
			printWarning("Cancelled")
			return nil
		}
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		inv, err := a.ledger.DeleteInvoice(cmd.Context(), ledger.ID(args[0]))
		if err != nil {
			return err
		}
		dropAttachment(a, inv)
		printSuccess("Deleted invoice %s", inv.ID)
		return nil
	},
}

var invoiceFileCmd = &cobra.Command{
	Use:   "file <id>",
	Short: "Save the original file of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.ledger.Document()
		if err != nil {
			return err
		}
		inv, ok := findInvoice(doc, ledger.ID(args[0]))
		if !ok {
			return fmt.Errorf("invoice %s: %w", args[0], ledger.ErrNotFound)
		}
		id := inv.AttachmentID()
		if id == "" {
			return fmt.Errorf("invoice %s has no attached file", inv.ID)
		}
		att, err := a.store.GetAttachment(id)
		if err != nil {
			return fmt.Errorf("loading attachment: %w", err)
		}
		if output == "" {
			output = filepath.Base(att.Name)
		}
		if err := os.WriteFile(output, att.Data, 0o644); err != nil {
			return fmt.Errorf("writing file: %w", err)
		}
		printSuccess("Saved %s", output)
		return nil
	},
}

// dropAttachment removes the original file of a deleted invoice.
func dropAttachment(a *app, inv ledger.Invoice) {
	id := inv.AttachmentID()
	if id == "" {
		return
	}
	if err := a.store.DeleteAttachment(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		printWarning("could not remove attached file: %v", err)
	}
}

func init() {
	for _, c := range []*cobra.Command{invoiceAddCmd, invoiceListCmd} {
		c.Flags().String("client", "", "client id or name")
		c.Flags().String("project", "", "project name")
	}
	invoiceDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	invoiceFileCmd.Flags().StringP("output", "o", "", "output path (default: original file name)")

	invoiceCmd.AddCommand(invoiceAddCmd)
	invoiceCmd.AddCommand(invoiceListCmd)
	invoiceCmd.AddCommand(invoiceSetCmd)
	invoiceCmd.AddCommand(invoicePaidCmd)
	invoiceCmd.AddCommand(invoiceDeleteCmd)
	invoiceCmd.AddCommand(invoiceFileCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or import the whole document",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export clients, invoices and inbox as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.ledger.Document()
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the document with an exported one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var doc ledger.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("invalid document: %w", err)
		}
		if !confirm(cmd, "This replaces ALL clients and invoices. Continue?") {
			printWarning("Cancelled")
			return nil
		}

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ledger.Import(doc); err != nil {
			return err
		}
		printSuccess("Imported %d clients, %d invoices, %d inbox invoices", len(doc.Clients), len(doc.Invoices), len(doc.Inbox))
		return nil
	},
}

func init() {
	dataExportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	dataImportCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataImportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/gastos/internal/intake"
	"github.com/kalambet/gastos/internal/ledger"
)

// submit reads files and runs them through the pipeline. Unreadable files
// are reported like any other failed file.
func submit(ctx context.Context, a *app, paths []string, dest ledger.Destination, target ledger.Target) error {
	var files []intake.File
	var results []intake.Result
	for _, p := range paths {
		f, err := intake.ReadFile(p)
		if err != nil {
			slog.Error("invoice intake failed", "file", p, "error", err)
			results = append(results, intake.Result{FileName: p, Err: err})
			continue
		}
		files = append(files, f)
	}

	if len(files) > 0 {
		printStep("Processing %d file(s)...", len(files))
		res, err := a.pipeline.Submit(ctx, files, dest, target)
		if err != nil {
			return err
		}
		results = append(results, res...)
	}

	if failed := printResults(results); failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
	}
	return nil
}

var uploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Extract invoices and file them under a client",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientRef, _ := cmd.Flags().GetString("client")
		project, _ := cmd.Flags().GetString("project")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := resolveClient(a.ledger, clientRef)
		if err != nil {
			return err
		}
		return submit(ctx, a, args, ledger.DestinationAssigned, ledger.Target{ClientID: c.ID, Project: project})
	},
}

func init() {
	uploadCmd.Flags().String("client", "", "client id or name")
	uploadCmd.Flags().String("project", "", "project name")
}

// --- inbox ---

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Invoices waiting to be assigned to a client",
}

var inboxAddCmd = &cobra.Command{
	Use:   "add <files...>",
	Short: "Extract invoices into the inbox",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		return submit(ctx, a, args, ledger.DestinationInbox, ledger.Target{})
	},
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inbox invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		inbox, err := a.ledger.Inbox()
		if err != nil {
			return err
		}
		if len(inbox) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "The inbox is empty.")
			return nil
		}
		printInvoices(cmd.OutOrStdout(), inbox, true)
		return nil
	},
}

var inboxAssignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Move an inbox invoice to a client",
	Args:  cobra.ExactArgs(1),
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
		inv, err := a.ledger.AssignInbox(cmd.Context(), ledger.ID(args[0]), ledger.Target{ClientID: c.ID, Project: project})
		if err != nil {
			return err
		}
		printSuccess("Assigned invoice %s to %s", inv.ID, c.Name)
		return nil
	},
}

var inboxDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an inbox invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "¿Eliminar esta factura de la bandeja?") {
			printWarning("Cancelled")
			return nil
		}
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		inv, err := a.ledger.DeleteInboxInvoice(cmd.Context(), ledger.ID(args[0]))
		if err != nil {
			return err
		}
		dropAttachment(a, inv)
		printSuccess("Deleted inbox invoice %s", inv.ID)
		return nil
	},
}

func init() {
	inboxAssignCmd.Flags().String("client", "", "client id or name")
	inboxAssignCmd.Flags().String("project", "", "project name")
	inboxDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	inboxCmd.AddCommand(inboxAddCmd)
	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxAssignCmd)
	inboxCmd.AddCommand(inboxDeleteCmd)
}

package standard

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

func newDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Export, import, and inspect the whole configuration document",
	}
	cmd.AddCommand(newDocumentExportCmd())
	cmd.AddCommand(newDocumentImportCmd())
	cmd.AddCommand(newDocumentHistoryCmd())
	cmd.AddCommand(newDocumentShowCmd())
	return cmd
}

func newDocumentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <revision>",
		Short: "Print the document as it was at a past revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			entry, err := api.HistorySnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), entry.Document)
		},
	}
}

func newDocumentExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			doc, revision, err := api.Document(ctx)
			if err != nil {
				return err
			}

			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := encodeAsJSON(w, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Revision: %s\n", revision)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newDocumentImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the whole document from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			doc, err := gatewaycfg.Unmarshal(raw)
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			result, err := api.ReplaceDocument(ctx, doc, revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document replaced (revision %s, %d binds)\n", result.Revision, result.Stats.Binds)
			return nil
		},
	}
	cmd.Flags().String("revision", "", "reject the import unless the server is still at this revision")
	return cmd
}

func newDocumentHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted document revisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			entries, err := api.History(ctx, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No history recorded.")
				return nil
			}
			fmt.Fprintf(w, "%-25s %-38s %s\n", "SAVED", "REVISION", "SUMMARY")
			for _, entry := range entries {
				summary := entry.Summary
				if summary == "" {
					summary = "-"
				}
				fmt.Fprintf(w, "%-25s %-38s %s\n", entry.CreatedAt.Format(time.RFC3339), entry.Revision, summary)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum entries to return")
	return cmd
}

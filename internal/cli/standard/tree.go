package standard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/cli/client"
	"github.com/trellisgw/trellis/internal/console/hierarchy"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Render the configuration hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			snap, err := api.Hierarchy(ctx)
			if err != nil {
				return err
			}

			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if asJSON {
				return encodeAsJSON(cmd.OutOrStdout(), snap)
			}

			renderTree(cmd.OutOrStdout(), snap.Tree, snap.Revision, termWidth())
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "emit the raw snapshot as JSON")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show hierarchy counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			result, err := api.Stats(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Revision: %s\n", result.Revision)
			fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %-10s %-12s %-12s\n",
				"BINDS", "LISTENERS", "ROUTES", "BACKENDS", "POLICIES", "BROKEN REFS", "DIAGNOSTICS")
			s := result.Stats
			fmt.Fprintf(w, "%-10d %-10d %-10d %-10d %-10d %-12d %-12d\n",
				s.Binds, s.Listeners, s.Routes, s.Backends, s.Policies, s.BrokenBackendRefs, s.Diagnostics)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream document change events",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			return api.WatchDocumentEvents(cmd.Context(), func(event client.DocumentEvent) {
				line := fmt.Sprintf("%s  %-18s rev=%s", event.Timestamp.Format(time.RFC3339), event.Type, event.Revision)
				if event.Address != "" {
					line += "  " + event.Address
				}
				fmt.Fprintln(w, line)
			})
		},
	}
}

func renderTree(w io.Writer, tree hierarchy.Tree, revision string, width int) {
	fmt.Fprintf(w, "Revision: %s\n", revision)

	if len(tree.Binds) == 0 {
		fmt.Fprintln(w, "No binds configured.")
	}
	for _, bind := range tree.Binds {
		line := fmt.Sprintf(":%d", bind.Port)
		if bind.TunnelProtocol != "" {
			line += fmt.Sprintf("  tunnel=%s", bind.TunnelProtocol)
		}
		fmt.Fprintln(w, truncate(line, width))
		printDiagnostics(w, "  ", bind.Diagnostics, width)

		for _, listener := range bind.Listeners {
			line := fmt.Sprintf("  listener[%d]", listener.Index)
			if listener.Name != "" {
				line += " " + listener.Name
			}
			if listener.Protocol != "" {
				line += fmt.Sprintf("  protocol=%s", listener.Protocol)
			}
			if listener.Hostname != "" {
				line += fmt.Sprintf("  hostname=%s", listener.Hostname)
			}
			if listener.TLS {
				line += "  tls"
			}
			fmt.Fprintln(w, truncate(line, width))
			printDiagnostics(w, "    ", listener.Diagnostics, width)

			for _, route := range listener.Routes {
				line := fmt.Sprintf("    route %s[%d]", route.Kind, route.Index)
				if route.Name != "" {
					line += " " + route.Name
				}
				if len(route.Hostnames) > 0 {
					line += "  hosts=" + joinOrDash(route.Hostnames)
				}
				fmt.Fprintln(w, truncate(line, width))
				printDiagnostics(w, "      ", route.Diagnostics, width)

				for _, backend := range route.Backends {
					line := fmt.Sprintf("      backend[%d] %s", backend.Index, backend.Kind)
					if backend.Target != "" {
						line += "  " + backend.Target
					}
					if backend.Weight > 0 {
						line += fmt.Sprintf("  weight=%d", backend.Weight)
					}
					fmt.Fprintln(w, truncate(line, width))
					printDiagnostics(w, "        ", backend.Diagnostics, width)
				}
			}
		}
	}

	if len(tree.Backends) > 0 {
		fmt.Fprintln(w, "Named backends:")
		for _, backend := range tree.Backends {
			line := fmt.Sprintf("  %s  %s  %s", backend.Name, backend.Kind(), hierarchy.TargetSummary(backend.Backend))
			fmt.Fprintln(w, truncate(line, width))
		}
	}
	if len(tree.Policies) > 0 {
		fmt.Fprintln(w, "Policies:")
		for _, policy := range tree.Policies {
			fmt.Fprintln(w, truncate(fmt.Sprintf("  %s  %s", policy.Name, policy.Kind), width))
		}
	}

	s := tree.Stats
	fmt.Fprintf(w, "Totals: binds=%d listeners=%d routes=%d backends=%d policies=%d diagnostics=%d\n",
		s.Binds, s.Listeners, s.Routes, s.Backends, s.Policies, s.Diagnostics)
}

func printDiagnostics(w io.Writer, indent string, diags []hierarchy.Diagnostic, width int) {
	for _, diag := range diags {
		fmt.Fprintln(w, truncate(fmt.Sprintf("%s! %s: %s", indent, diag.Level, diag.Message), width))
	}
}

package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/console/hierarchy"
)

func newBackendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Manage named backends",
	}
	cmd.AddCommand(newBackendsListCmd())
	cmd.AddCommand(newBackendsPutCmd())
	cmd.AddCommand(newBackendsDeleteCmd())
	return cmd
}

func newBackendsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List named backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			backends, err := api.Backends(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(backends) == 0 {
				fmt.Fprintln(w, "No named backends.")
				return nil
			}
			fmt.Fprintf(w, "%-24s %-10s %s\n", "NAME", "KIND", "TARGET")
			for _, backend := range backends {
				fmt.Fprintf(w, "%-24s %-10s %s\n", backend.Name, backend.Kind(), hierarchy.TargetSummary(backend.Backend))
			}
			return nil
		},
	}
}

func newBackendsPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Create or replace a named backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readValue(cmd)
			if err != nil {
				return err
			}
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.UpsertBackend(ctx, args[0], value, revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend %s saved (revision %s)\n", args[0], res.Revision)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSON file with the backend value (use - for stdin)")
	cmd.Flags().String("value", "", "inline JSON object with the backend value")
	cmd.Flags().String("revision", "", "reject the edit unless the server is still at this revision")
	return cmd
}

func newBackendsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a named backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.DeleteBackend(ctx, args[0], revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend %s deleted (revision %s)\n", args[0], res.Revision)
			if res.Stats.BrokenBackendRefs > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d route backends still reference missing names\n", res.Stats.BrokenBackendRefs)
			}
			return nil
		},
	}
	cmd.Flags().String("revision", "", "reject the delete unless the server is still at this revision")
	return cmd
}

func newPoliciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage named policies",
	}
	cmd.AddCommand(newPoliciesListCmd())
	cmd.AddCommand(newPoliciesPutCmd())
	cmd.AddCommand(newPoliciesDeleteCmd())
	return cmd
}

func newPoliciesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			policies, err := api.Policies(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(policies) == 0 {
				fmt.Fprintln(w, "No policies.")
				return nil
			}
			fmt.Fprintf(w, "%-24s %-12s %s\n", "NAME", "KIND", "RULES")
			for _, policy := range policies {
				fmt.Fprintf(w, "%-24s %-12s %d\n", policy.Name, policy.Kind, len(policy.Rules))
			}
			return nil
		},
	}
}

func newPoliciesPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Create or replace a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readValue(cmd)
			if err != nil {
				return err
			}
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.UpsertPolicy(ctx, args[0], value, revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy %s saved (revision %s)\n", args[0], res.Revision)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSON file with the policy value (use - for stdin)")
	cmd.Flags().String("value", "", "inline JSON object with the policy value")
	cmd.Flags().String("revision", "", "reject the edit unless the server is still at this revision")
	return cmd
}

func newPoliciesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, err := revisionFromCmd(cmd)
			if err != nil {
				return err
			}
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			res, err := api.DeletePolicy(ctx, args[0], revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy %s deleted (revision %s)\n", args[0], res.Revision)
			return nil
		},
	}
	cmd.Flags().String("revision", "", "reject the delete unless the server is still at this revision")
	return cmd
}

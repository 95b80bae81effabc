package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/cli/openapiutil"
)

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api [operation]",
		Short: "Explore the console's REST API",
		Long: `Without arguments, api lists every operation the console exposes.
Given an operationId or a METHOD:PATH token it describes that operation's
parameters.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			data, err := api.OpenAPIDocument(ctx)
			if err != nil {
				return err
			}
			doc, err := openapiutil.ParseDocument(data)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintf(w, "%-28s %-7s %-52s %s\n", "OPERATION", "METHOD", "PATH", "SUMMARY")
				for _, op := range openapiutil.ListOperations(doc) {
					id := op.OperationID
					if id == "" {
						id = "-"
					}
					fmt.Fprintf(w, "%-28s %-7s %-52s %s\n", id, op.Method, op.Path, op.Summary)
				}
				return nil
			}

			op, err := openapiutil.FindOperation(doc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s\n", op.Method, op.Path)
			if op.Summary != "" {
				fmt.Fprintln(w, op.Summary)
			}
			if op.Description != "" {
				fmt.Fprintln(w, op.Description)
			}
			if len(op.Parameters) > 0 {
				fmt.Fprintf(w, "\n%-24s %-8s %-9s %s\n", "PARAMETER", "IN", "REQUIRED", "DESCRIPTION")
				for _, param := range op.Parameters {
					fmt.Fprintf(w, "%-24s %-8s %-9t %s\n", param.Name, param.In, param.Required, param.Description)
				}
			}
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				fmt.Fprintln(w, "\nAccepts a JSON request body.")
			}
			return nil
		},
	}
	return cmd
}

package standard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trellisgw/trellis/internal/cli/client"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect node schemas and resolve union fields",
	}
	cmd.AddCommand(newSchemaListCmd())
	cmd.AddCommand(newSchemaGetCmd())
	cmd.AddCommand(newSchemaResolveCmd())
	return cmd
}

func newSchemaListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schema categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			categories, err := api.Categories(ctx)
			if err != nil {
				return err
			}
			for _, category := range categories {
				fmt.Fprintln(cmd.OutOrStdout(), category)
			}
			return nil
		},
	}
}

func newSchemaGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <category>",
		Short: "Print the JSON schema for a node category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			schema, err := api.Schema(ctx, args[0])
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(schema, &pretty); err != nil {
				return fmt.Errorf("decode schema: %w", err)
			}
			return encodeAsJSON(cmd.OutOrStdout(), pretty)
		},
	}
}

func newSchemaResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <category>",
		Short: "Resolve a union field against a value",
		Long: `Resolve reports which alternative of a oneOf union is active for the
given value, or applies a selection to produce an updated value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pointer, err := cmd.Flags().GetString("pointer")
			if err != nil {
				return err
			}
			inline, err := cmd.Flags().GetString("value")
			if err != nil {
				return err
			}

			payload := client.ResolveRequest{Pointer: pointer}
			if inline != "" {
				var value any
				if err := json.Unmarshal([]byte(inline), &value); err != nil {
					return fmt.Errorf("--value must be JSON: %w", err)
				}
				payload.Value = value
			}
			if cmd.Flags().Changed("selection") {
				selection, err := cmd.Flags().GetInt("selection")
				if err != nil {
					return err
				}
				payload.Selection = &selection
			}
			if cmd.Flags().Changed("enabled") {
				enabled, err := cmd.Flags().GetBool("enabled")
				if err != nil {
					return err
				}
				payload.Enabled = &enabled
			}

			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			result, err := api.Resolve(ctx, args[0], payload)
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(result, &pretty); err != nil {
				return fmt.Errorf("decode resolution: %w", err)
			}
			return encodeAsJSON(cmd.OutOrStdout(), pretty)
		},
	}
	cmd.Flags().String("pointer", "", "JSON pointer to the union field within the category schema")
	cmd.Flags().String("value", "", "inline JSON value to resolve against")
	cmd.Flags().Int("selection", 0, "alternative index to apply")
	cmd.Flags().Bool("enabled", true, "enable or disable the optional union field")
	return cmd
}

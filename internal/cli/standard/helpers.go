package standard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trellisgw/trellis/internal/cli/client"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Flags().GetString("api")
	if err != nil {
		return nil, err
	}
	apiKey, err := cmd.Flags().GetString("api-key")
	if err != nil {
		return nil, err
	}
	return client.New(base, apiKey)
}

func encodeAsJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readValue loads an edit payload from --file (use "-" for stdin) or an
// inline --value JSON object. Exactly one source must be provided.
func readValue(cmd *cobra.Command) (map[string]any, error) {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return nil, err
	}
	inline, err := cmd.Flags().GetString("value")
	if err != nil {
		return nil, err
	}
	if file != "" && inline != "" {
		return nil, fmt.Errorf("use --file or --value, not both")
	}

	var raw []byte
	switch {
	case file == "-":
		raw, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	case file != "":
		raw, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	case inline != "":
		raw = []byte(inline)
	default:
		return nil, fmt.Errorf("a value is required (--file or --value)")
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("value must be a JSON object: %w", err)
	}
	return value, nil
}

func keepFromCmd(cmd *cobra.Command) ([]string, error) {
	keep, err := cmd.Flags().GetStringSlice("keep")
	if err != nil {
		return nil, err
	}
	return keep, nil
}

func revisionFromCmd(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("revision")
}

// termWidth reports the terminal width, or a generous default when stdout is
// not a terminal.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 120
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

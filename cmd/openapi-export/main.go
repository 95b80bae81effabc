package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"

	httpapi "github.com/trellisgw/trellis/internal/console/httpapi"
	"github.com/trellisgw/trellis/internal/console/schemas"
)

func main() {
	var (
		outPath    string
		format     string
		serverURL  string
		schemasDir string
	)

	flag.StringVar(&outPath, "output", "", "Output path (default stdout)")
	flag.StringVar(&format, "format", "json", "Output format: json")
	flag.StringVar(&serverURL, "server", "http://127.0.0.1:7070", "Server URL to include in OpenAPI servers list")
	flag.StringVar(&schemasDir, "schemas-dir", "", "Also write per-category node schema fragments into this directory")
	flag.Parse()

	if schemasDir != "" {
		if err := exportSchemas(schemasDir); err != nil {
			fatalf("export schemas: %v", err)
		}
	}

	// Build the document with the same generator the HTTP handler uses
	spec, err := httpapi.BuildOpenAPISpec("")
	if err != nil {
		fatalf("build openapi: %v", err)
	}

	serverURL = strings.TrimSpace(serverURL)
	if serverURL != "" {
		spec.Servers = openapi3.Servers{&openapi3.Server{URL: serverURL}}
	}

	var data []byte
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(spec, "", "  ")
		if err != nil {
			fatalf("marshal json: %v", err)
		}
	default:
		fatalf("unsupported format: %s (only json supported)", format)
	}

	if outPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fatalf("write %s: %v", outPath, err)
	}
}

func exportSchemas(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	registry := schemas.NewRegistry()
	for _, category := range registry.Categories() {
		fragment, err := registry.Get(category)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(fragment, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", category, err)
		}
		path := filepath.Join(dir, string(category)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

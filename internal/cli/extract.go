package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RhysSullivan/assistant-sub002/pkg/openapi"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

var (
	extractSpec      string
	extractSourceID  string
	extractWorkspace string
	extractBaseURL   string
	extractName      string
	extractOut       string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a tool manifest from an OpenAPI document",
	Long: `Extract a tool manifest from an OpenAPI document. Each operation
becomes a canonical tool descriptor; the manifest carries a content hash
so unchanged specs are detected on refresh.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractSpec, "spec", "", "path to the OpenAPI document (required)")
	extractCmd.Flags().StringVar(&extractSourceID, "source-id", "", "tool source id (required)")
	extractCmd.Flags().StringVar(&extractWorkspace, "workspace", "", "workspace id (required)")
	extractCmd.Flags().StringVar(&extractBaseURL, "base-url", "", "base URL for invocations")
	extractCmd.Flags().StringVar(&extractName, "name", "", "source namespace (defaults to source id)")
	extractCmd.Flags().StringVar(&extractOut, "out", "", "write the manifest to a file instead of stdout")
	extractCmd.MarkFlagRequired("spec")
	extractCmd.MarkFlagRequired("source-id")
	extractCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	spec, err := os.ReadFile(extractSpec)
	if err != nil {
		return fmt.Errorf("failed to read spec: %w", err)
	}

	name := extractName
	if name == "" {
		name = extractSourceID
	}
	source := tool.Source{
		ID:          extractSourceID,
		WorkspaceID: extractWorkspace,
		Kind:        "http",
		Name:        name,
		BaseURL:     extractBaseURL,
	}

	extraction, err := openapi.NewExtractor().Extract(source, spec)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	out, err := json.MarshalIndent(extraction.Manifest, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if extractOut != "" {
		if err := os.WriteFile(extractOut, out, 0644); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tools to %s\n", len(extraction.Manifest.Tools), extractOut)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}

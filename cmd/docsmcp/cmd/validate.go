package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type validateIssue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

type validateReport struct {
	FilesScanned int             `json:"files_scanned"`
	Errors       []validateIssue `json:"errors"`
}

func newValidateCmd() *cobra.Command {
	var docsDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate manifests and frontmatter across the docs corpus",
		Long: `validate walks docs-dir, resolves every file's chunking manifest and
frontmatter, and reports any file whose configuration could not be
resolved (malformed .docs-mcp.json, conflicting overrides, bad
frontmatter). Exits non-zero if any errors were found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := runValidate(docsDir)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printValidateHuman(cmd, report)
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("%d file(s) failed validation", len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docsDir, "docs-dir", "docs", "Directory containing the Markdown corpus")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runValidate(docsDir string) validateReport {
	relPaths, err := walkMarkdownFiles(docsDir)
	if err != nil {
		return validateReport{Errors: []validateIssue{{File: docsDir, Message: err.Error()}}}
	}

	report := validateReport{FilesScanned: len(relPaths)}
	for _, rel := range relPaths {
		if _, err := loadOneDocFile(docsDir, rel); err != nil {
			report.Errors = append(report.Errors, validateIssue{File: rel, Message: err.Error()})
		}
	}

	if _, err := mergedTaxonomy(docsDir); err != nil {
		report.Errors = append(report.Errors, validateIssue{File: docsDir, Message: fmt.Sprintf("taxonomy: %v", err)})
	}

	return report
}

func printValidateHuman(cmd *cobra.Command, report validateReport) {
	out := cmd.OutOrStdout()
	if len(report.Errors) == 0 {
		fmt.Fprintf(out, "validated %d file(s), no errors\n", report.FilesScanned)
		return
	}
	fmt.Fprintf(out, "validated %d file(s), %d error(s):\n", report.FilesScanned, len(report.Errors))
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  %s: %s\n", e.File, e.Message)
	}
}

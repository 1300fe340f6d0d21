package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the outcome log to a file",
	Long: `Export every retained outcome of the active profile to a backup file.

JSON exports stream outcomes one at a time; SQLite exports copy the
database after a WAL checkpoint.`,
	Example: `  verdict export -o backup.json
  verdict export -o backup.db --format sqlite
  verdict --profile support-bot export -o support.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import outcomes from a JSON export",
	Example: `  verdict import -i backup.json
  verdict import -i backup.json --strategy replace
  verdict import -i backup.json --dry-run`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var (
	exportOutputPath string
	exportFormat     string
	importInputPath  string
	importStrategy   string
	importDryRun     bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, sqlite")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Input file path (required)")
	importCmd.Flags().StringVar(&importStrategy, "strategy", string(verdict.MergeStrategySkip), "Conflict strategy: skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview import without making changes")
	_ = importCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(exportCmd, importCmd)
}

type exportResult struct {
	Profile  string `json:"profile"`
	Format   string `json:"format"`
	Outcomes int    `json:"outcomes"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'sqlite'", exportFormat)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}

	start := time.Now()
	switch format {
	case "json":
		err = exportJSONFile(cmd, client.Client, exportOutputPath)
	case "sqlite":
		err = client.ExportSQLite(cmd.Context(), exportOutputPath)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	result := exportResult{
		Profile:  client.Config().Profile,
		Format:   format,
		Outcomes: stats.OutcomeCount,
		FilePath: exportOutputPath,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if fi, statErr := os.Stat(exportOutputPath); statErr == nil {
		result.FileSize = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Exported %d outcomes", result.Outcomes)
	printField(out, "Format", "%s", strings.ToUpper(format))
	printField(out, "File size", "%s", formatBytes(result.FileSize))
	printField(out, "Duration", "%s", result.Duration)
	printField(out, "Output", "%s", result.FilePath)
	return nil
}

func exportJSONFile(cmd *cobra.Command, client *verdict.Client, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := client.Export(cmd.Context(), f); err != nil {
		_ = os.Remove(destPath)
		return err
	}
	return f.Sync()
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy := verdict.MergeStrategy(strings.ToLower(importStrategy))
	if !strategy.IsValid() {
		return fmt.Errorf("invalid strategy %q: must be 'skip' or 'replace'", importStrategy)
	}

	f, err := os.Open(importInputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Import(cmd.Context(), f, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if importDryRun {
		printInfo(out, "Dry run: no changes written")
	}
	printSuccess(out, "Imported %d of %d outcomes", result.Created+result.Replaced, result.Total)
	printField(out, "Created", "%d", result.Created)
	printField(out, "Replaced", "%d", result.Replaced)
	printField(out, "Skipped", "%d", result.Skipped)
	if len(result.Errors) > 0 {
		printWarning(out, "%d outcomes failed", len(result.Errors))
		for _, e := range result.Errors {
			printMuted(out, "    %s", e)
		}
	}
	return nil
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// importFlags are shared by preview and commit.
type importFlags struct {
	archive    bool
	templateID string
	configFile string
	jsonOutput bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.archive, "archive", false, "treat the file as a zip archive with attached documents")
	cmd.Flags().StringVar(&f.templateID, "template", "", "stored import template id")
	cmd.Flags().StringVar(&f.configFile, "mapping", "", "YAML file with mapping and options overrides")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the full result as JSON")
}

// request reads the file and the optional YAML overrides.
func (f *importFlags) request(g *globals, file string) (pipeline.PreviewRequest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return pipeline.PreviewRequest{}, fmt.Errorf("reading %s: %w", file, err)
	}

	var cfg pipeline.ImportConfig
	if f.configFile != "" {
		raw, err := os.ReadFile(f.configFile)
		if err != nil {
			return pipeline.PreviewRequest{}, fmt.Errorf("reading mapping: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return pipeline.PreviewRequest{}, fmt.Errorf("parsing mapping: %w", err)
		}
	}
	if f.templateID != "" {
		cfg.TemplateID = f.templateID
	}

	archive := f.archive || strings.EqualFold(filepath.Ext(file), ".zip")
	return pipeline.PreviewRequest{
		OrganizationID: g.orgID,
		Actor:          g.actor,
		File:           pipeline.Upload{Filename: filepath.Base(file), Data: data},
		Archive:        archive,
		Config:         cfg,
	}, nil
}

func newPreviewCommand(g *globals) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Validate a statement and show how each row would be imported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(g, args[0])
			if err != nil {
				return err
			}
			b, log, err := g.backend(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b, log)

			result, err := b.Imports.Preview(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return printPreview(cmd.OutOrStdout(), result)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCommitCommand(g *globals) *cobra.Command {
	var (
		flags     importFlags
		importIdx []int
		skipIdx   []int
	)

	cmd := &cobra.Command{
		Use:   "commit <file>",
		Short: "Import the valid rows of a statement",
		Long: "Import the valid rows of a statement. Duplicate candidates are skipped\n" +
			"unless their row index is passed with --import-row.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(g, args[0])
			if err != nil {
				return err
			}
			decisions := map[int]pipeline.Decision{}
			for _, idx := range skipIdx {
				decisions[idx] = pipeline.DecisionSkip
			}
			for _, idx := range importIdx {
				decisions[idx] = pipeline.DecisionImport
			}

			b, log, err := g.backend(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b, log)

			result, err := b.Imports.Commit(cmd.Context(), pipeline.CommitRequest{PreviewRequest: req, Decisions: decisions})
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows (%d invalid, %d duplicates skipped).\n",
				result.ImportedCount, result.TotalRows, result.SkippedInvalidCount, result.SkippedDuplicateCount)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntSliceVar(&importIdx, "import-row", nil, "row index of a duplicate candidate to import anyway")
	cmd.Flags().IntSliceVar(&skipIdx, "skip-row", nil, "row index of a duplicate candidate to skip")
	return cmd
}

func printPreview(w io.Writer, result *pipeline.PreviewResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTATUS\tDATE\tAMOUNT\tDESCRIPTION\tNOTES")
	for _, row := range result.Rows {
		date, amount, desc := "", "", ""
		if n := row.Normalized; n != nil {
			date = n.Date.String()
			amount = n.AmountOriginal.StringFixed(2) + " " + n.CurrencyOriginal
			desc = n.Description
		}
		status := string(row.Status)
		if row.IsDuplicateCandidate {
			status += " (duplicate?)"
		}
		notes := append(append([]string{}, row.Errors...), row.Warnings...)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", row.RowIndex, status, date, amount, desc, strings.Join(notes, "; "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := result.Summary
	_, err := fmt.Fprintf(w, "\n%d rows: %d valid, %d invalid, %d duplicate candidates\n",
		s.TotalRows, s.ValidRows, s.InvalidRows, s.DuplicateCandidates)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

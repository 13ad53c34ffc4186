package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/templates"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTemplatesCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage stored import templates",
	}
	cmd.AddCommand(
		newTemplatesListCommand(g),
		newTemplatesShowCommand(g),
		newTemplatesCreateCommand(g),
	)
	return cmd
}

func newTemplatesListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the organization's import templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, log, err := g.backend(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b, log)

			list, err := b.Templates.List(cmd.Context(), g.orgID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDIRECTION\tUPDATED")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Options.Direction, t.UpdatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}
}

func newTemplatesShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, log, err := g.backend(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b, log)

			t, err := b.Templates.Get(cmd.Context(), g.orgID, args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(templates.Input{Name: t.Name, Mapping: t.Mapping, Options: t.Options})
			if err != nil {
				return fmt.Errorf("encoding template: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newTemplatesCreateCommand(g *globals) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading template: %w", err)
			}
			in := templates.Input{Options: domain.DefaultParsingOptions()}
			if err := yaml.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parsing template: %w", err)
			}

			b, log, err := g.backend(cmd)
			if err != nil {
				return err
			}
			defer closeBackend(b, log)

			t, err := b.Templates.Create(cmd.Context(), g.orgID, g.actor, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created template %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "template YAML file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

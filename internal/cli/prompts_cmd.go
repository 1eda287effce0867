package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scoutbot/internal/prompts"
	"github.com/soyeahso/scoutbot/internal/store"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect and edit prompt templates",
	}

	cmd.AddCommand(newPromptsListCmd())
	cmd.AddCommand(newPromptsShowCmd())
	cmd.AddCommand(newPromptsSetCmd())
	cmd.AddCommand(newPromptsExportCmd())
	cmd.AddCommand(newPromptsImportCmd())
	cmd.AddCommand(newPromptsSeedCmd())

	return cmd
}

// withTemplates opens the configured template store for one command.
func withTemplates(fn func(t *prompts.Templates) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var db *store.DB
	if cfg.Prompts.Store == "sqlite" {
		db, err = store.Open(paths.Database(cfg.Store), log)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
	}
	ts, err := openTemplateStore(cfg.Prompts, paths, db)
	if err != nil {
		return err
	}
	return fn(prompts.NewTemplates(ts, log))
}

func newPromptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List template keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(func(t *prompts.Templates) error {
				keys, err := t.List()
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func newPromptsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(func(t *prompts.Templates) error {
				content, err := t.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), content)
				return nil
			})
		},
	}
}

func newPromptsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <file>",
		Short: "Replace a template with the contents of a file (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readSource(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return withTemplates(func(t *prompts.Templates) error {
				if err := t.Set(args[0], content); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s (%d bytes)\n", args[0], len(content))
				return nil
			})
		},
	}
}

func newPromptsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every template to <dir> as <key>.txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(func(t *prompts.Templates) error {
				n, err := copyTemplates(t, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d template(s) to %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newPromptsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load every <key>.txt file in <dir> into the template store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(func(t *prompts.Templates) error {
				n, err := importTemplates(t, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d template(s) from %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newPromptsSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Store the built-in default for every missing template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTemplates(func(t *prompts.Templates) error {
				written, err := t.Seed()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d template(s)\n", len(written))
				return nil
			})
		},
	}
}

// copyTemplates writes every key of src into a file store at dir.
func copyTemplates(src *prompts.Templates, dir string) (int, error) {
	dst, err := prompts.NewFileStore(dir)
	if err != nil {
		return 0, err
	}
	keys, err := src.List()
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		content, err := src.Get(k)
		if err != nil {
			return 0, err
		}
		if err := dst.Set(k, content); err != nil {
			return 0, fmt.Errorf("export %s: %w", k, err)
		}
	}
	return len(keys), nil
}

// importTemplates stores every template found in the file store at dir.
func importTemplates(dst *prompts.Templates, dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, err
	}
	src, err := prompts.NewFileStore(dir)
	if err != nil {
		return 0, err
	}
	keys, err := src.List()
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		content, err := src.Get(k)
		if err != nil {
			return 0, err
		}
		if err := dst.Set(k, content); err != nil {
			return 0, fmt.Errorf("import %s: %w", k, err)
		}
	}
	return len(keys), nil
}

func readSource(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(name)
	return string(data), err
}

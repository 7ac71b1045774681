package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/notebook"
	"github.com/liszzmword/ai-data-analyst/internal/render"
)

var (
	nbDescription string
	nbName        string
	nbClear       bool
	nbHistory     int
)

var notebookCmd = &cobra.Command{
	Use:     "notebook",
	Aliases: []string{"nb"},
	Short:   "Manage notebooks: saved sets of data files with their chat history",
	Example: `  analyst notebook init q3-review -d "3분기 실적 검토"
  analyst notebook add -n q3-review sales_q3.xlsx 거래처.csv
  analyst chat --notebook q3-review`,
}

var notebookInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a notebook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		nb, err := notebook.Create(c.NotebooksDir, args[0], nbDescription)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Notebook initialized: %s\n", nb.RootDir())
		return nil
	},
}

var notebookAddCmd = &cobra.Command{
	Use:   "add <files...>",
	Short: "Add tables, images, PDFs or notes to a notebook",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, nb, err := openNotebook()
		if err != nil {
			return err
		}
		loader := newLoader(c, optionalCodebook(c))
		out := cmd.OutOrStdout()
		for _, path := range args {
			f, err := nb.AddFile(loader, path, nbDescription)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Added %s (%s)\n", f.Name, describeFile(f))
		}
		return nb.Save()
	},
}

var notebookRemoveCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Remove a file from a notebook by name or id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, nb, err := openNotebook()
		if err != nil {
			return err
		}
		if !nb.RemoveFile(args[0]) {
			return fmt.Errorf("file %q not found in notebook %s", args[0], nb.Name)
		}
		if err := nb.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", args[0])
		return nil
	},
}

var notebookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notebooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		nbs, err := notebook.List(c.NotebooksDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(nbs) == 0 {
			fmt.Fprintln(out, "(no notebooks)")
			return nil
		}
		rows := make([][]string, len(nbs))
		for i, nb := range nbs {
			rows[i] = []string{
				nb.Name,
				nb.Description,
				strconv.Itoa(len(nb.Files)),
				strconv.Itoa(len(nb.History)),
				nb.UpdatedAt.Format(time.DateTime),
			}
		}
		render.Rows(out, []string{"name", "description", "files", "turns", "updated"}, rows)
		return nil
	},
}

var notebookShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the files and recent history of a notebook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		nb, err := notebook.Resolve(c.NotebooksDir, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s", nb.Name)
		if nb.Description != "" {
			fmt.Fprintf(out, " - %s", nb.Description)
		}
		fmt.Fprintf(out, "\n%s\n", nb.RootDir())
		if nb.Config != nil && nb.Config.Model != "" {
			fmt.Fprintf(out, "model: %s\n", nb.Config.Model)
		}
		fmt.Fprintln(out)

		files := nb.SortedFiles()
		if len(files) == 0 {
			fmt.Fprintln(out, "(no files)")
		} else {
			rows := make([][]string, len(files))
			for i, f := range files {
				rows[i] = []string{f.ID[:8], f.Name, describeFile(f), f.Description}
			}
			render.Rows(out, []string{"id", "file", "content", "description"}, rows)
		}

		turns := nb.History
		if nbHistory >= 0 && len(turns) > nbHistory {
			turns = turns[len(turns)-nbHistory:]
		}
		for _, t := range turns {
			fmt.Fprintf(out, "\n[%s] Q: %s\n", t.At.Format(time.DateTime), t.Query)
			fmt.Fprintf(out, "A: %s\n", t.Answer)
		}
		return nil
	},
}

var notebookSetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Set or clear a notebook's model override",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, nb, err := openNotebook()
		if err != nil {
			return err
		}
		if nb.Config == nil {
			nb.Config = &notebook.Config{}
		}
		if nbClear {
			nb.Config.Model = ""
		} else {
			if len(args) == 0 || args[0] == "" {
				return fmt.Errorf("model is required unless --clear is set")
			}
			nb.Config.Model = args[0]
		}
		if err := nb.Save(); err != nil {
			return err
		}
		if nbClear {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared notebook model for %s\n", nb.Name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set notebook model for %s: %s\n", nb.Name, nb.Config.Model)
		}
		return nil
	},
}

func openNotebook() (*cfgpkg.Global, *notebook.Notebook, error) {
	if nbName == "" {
		return nil, nil, fmt.Errorf("--notebook is required")
	}
	c, err := requireConfig()
	if err != nil {
		return nil, nil, err
	}
	nb, err := notebook.Resolve(c.NotebooksDir, nbName)
	if err != nil {
		return nil, nil, err
	}
	return c, nb, nil
}

func describeFile(f *notebook.File) string {
	if f.Rows > 0 || f.Columns > 0 {
		return fmt.Sprintf("%s, %d행 × %d열", f.Kind, f.Rows, f.Columns)
	}
	return string(f.Kind)
}

// notebookSettings applies the notebook's overrides to s.
func notebookSettings(s analyst.Settings, nb *notebook.Notebook) analyst.Settings {
	if nb == nil || nb.Config == nil {
		return s
	}
	if nb.Config.Model != "" {
		s.Model = nb.Config.Model
	}
	if nb.Config.MaxTokens > 0 {
		s.MaxTokens = nb.Config.MaxTokens
	}
	if nb.Config.Temperature > 0 {
		s.Temperature = nb.Config.Temperature
	}
	return s
}

func init() {
	rootCmd.AddCommand(notebookCmd)
	notebookCmd.AddCommand(notebookInitCmd)
	notebookCmd.AddCommand(notebookAddCmd)
	notebookCmd.AddCommand(notebookRemoveCmd)
	notebookCmd.AddCommand(notebookListCmd)
	notebookCmd.AddCommand(notebookShowCmd)
	notebookCmd.AddCommand(notebookSetModelCmd)

	notebookInitCmd.Flags().StringVarP(&nbDescription, "description", "d", "", "notebook description")
	notebookAddCmd.Flags().StringVar(&nbDescription, "desc", "", "description of the added files")
	for _, c := range []*cobra.Command{notebookAddCmd, notebookRemoveCmd, notebookSetModelCmd} {
		c.Flags().StringVarP(&nbName, "notebook", "n", "", "notebook name or path")
	}
	notebookShowCmd.Flags().IntVar(&nbHistory, "history", 5, "recent turns to show (-1 for all)")
	notebookSetModelCmd.Flags().BoolVar(&nbClear, "clear", false, "clear the notebook's model override")
}

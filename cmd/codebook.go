package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/render"
)

var (
	cbKind     string
	cbLimit    int
	cbSemantic bool
)

var codebookCmd = &cobra.Command{
	Use:     "codebook",
	Aliases: []string{"cb"},
	Short:   "Browse the field dictionary",
	Example: `  analyst codebook list --kind "sales data"
  analyst codebook show J-6
  analyst codebook search 매출일`,
}

var codebookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dictionary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := loadCodebook()
		if err != nil {
			return err
		}
		var entries []codebook.Entry
		for _, e := range cb.Entries() {
			if cbKind == "" || e.Kind == cbKind {
				entries = append(entries, e)
			}
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no entries)")
			return nil
		}
		writeEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

var codebookShowCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Show the entries for a column code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := loadCodebook()
		if err != nil {
			return err
		}
		code := strings.ToUpper(strings.TrimSpace(args[0]))
		kinds := cb.Kinds()
		if cbKind != "" {
			kinds = []string{cbKind}
		}
		out := cmd.OutOrStdout()
		found := false
		for _, kind := range kinds {
			e, ok := cb.Lookup(kind, code)
			if !ok {
				continue
			}
			found = true
			rows := [][2]string{
				{"파일 구분", e.Kind},
				{"번호", e.Code},
				{"항목", e.Name},
				{"항목설명", e.Description},
			}
			if e.Examples != "" {
				rows = append(rows, [2]string{"예시", e.Examples})
			}
			render.Pairs(out, [2]string{"필드", "값"}, rows)
		}
		if !found {
			return fmt.Errorf("code %s not found", code)
		}
		return nil
	},
}

var codebookSearchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search entries by code, name or description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		cb, err := codebook.Load(c.Path(c.CodebookFile), logger)
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		entries := cb.Search(query, cbLimit)
		if cbSemantic {
			entries = mergeSemantic(cmd, c, query, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "'%s'와 관련된 항목을 찾을 수 없습니다\n", query)
			return nil
		}
		writeEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

// mergeSemantic appends embedding-index hits not already found by text.
func mergeSemantic(cmd *cobra.Command, c *cfgpkg.Global, query string, entries []codebook.Entry) []codebook.Entry {
	s := openSearcher(c)
	if s == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "⚠ no codebook index; run 'analyst index build' first")
		return entries
	}
	hits, err := s.Search(cmd.Context(), query, cbLimit)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), err)
		return entries
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Kind+"/"+e.Code] = true
	}
	for _, h := range hits {
		if !seen[h.Kind+"/"+h.Code] {
			seen[h.Kind+"/"+h.Code] = true
			entries = append(entries, h)
		}
	}
	return entries
}

func loadCodebook() (*codebook.Codebook, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	return codebook.Load(c.Path(c.CodebookFile), logger)
}

func writeEntries(w io.Writer, entries []codebook.Entry) {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Kind, e.Code, e.Name, e.Description}
	}
	render.Rows(w, []string{"파일 구분", "번호", "항목", "항목설명"}, rows)
	fmt.Fprintf(w, "(%d entries)\n", len(entries))
}

func init() {
	rootCmd.AddCommand(codebookCmd)
	codebookCmd.AddCommand(codebookListCmd)
	codebookCmd.AddCommand(codebookShowCmd)
	codebookCmd.AddCommand(codebookSearchCmd)

	codebookCmd.PersistentFlags().StringVarP(&cbKind, "kind", "k", "", "file kind, e.g. 'sales data' or '거래처 데이터'")
	codebookSearchCmd.Flags().IntVarP(&cbLimit, "limit", "n", 10, "maximum entries to show")
	codebookSearchCmd.Flags().BoolVar(&cbSemantic, "semantic", false, "add matches from the embedding index")
}

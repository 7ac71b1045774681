package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
)

var (
	anaFiles       []string
	anaNoImages    bool
	anaShowContext bool
	anaRaw         bool
	anaModel       string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <question...>",
	Short: "Answer a question from CSV, Excel, image and note files",
	Long: `Load the given files, join tables that share a company column, extract the data
relevant to the question and ask the model. Images are sent along when the model accepts
them and dropped otherwise.`,
	Example: `  analyst analyze --file sales_2024.xlsx --file 거래처.csv "한국상사 매출 추이"
  analyst analyze -f chart.png -f sales.csv --show-context "상위 10개 거래처"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(anaFiles) == 0 {
			return fmt.Errorf("at least one --file is required")
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		rt, _, err := runtimeFactory(c, provider)
		if err != nil {
			return err
		}
		loader := newLoader(c, optionalCodebook(c))
		files := &upload.Set{}
		out := cmd.OutOrStdout()
		for _, path := range anaFiles {
			f, err := loader.LoadFile(path)
			if err != nil {
				return err
			}
			files.Add(f)
			fmt.Fprintf(out, "✓ %s\n", f.Name)
		}

		model := c.AnalystModel
		if anaModel != "" {
			model = anaModel
		}
		smart := analyst.NewSmartAnalyst(rt, settings(c, model), logger)
		res := smart.Analyze(cmd.Context(), files, analyst.Request{
			Query:         strings.Join(args, " "),
			IncludeImages: !anaNoImages,
		})
		if anaShowContext {
			fmt.Fprintln(out, "\n=== Data context ===")
			fmt.Fprintln(out, res.Context)
		}
		fmt.Fprintln(out)
		printMarkdown(out, res.Answer, anaRaw)
		if res.Err != nil {
			printFailure(out, res.Err)
			return nil
		}
		for _, t := range res.Tables {
			fmt.Fprintln(out)
			render.Box(out, t, 20)
		}
		if res.Usage.TotalTokens > 0 {
			fmt.Fprintf(out, "\ntokens: %d (prompt %d, completion %d)\n",
				res.Usage.TotalTokens, res.Usage.PromptTokens, res.Usage.CompletionTokens)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringArrayVarP(&anaFiles, "file", "f", nil, "CSV, Excel, image, PDF, .txt, .md or .docx file (repeatable)")
	analyzeCmd.Flags().BoolVar(&anaNoImages, "no-images", false, "do not send images to the model")
	analyzeCmd.Flags().BoolVar(&anaShowContext, "show-context", false, "print the data context sent to the model")
	analyzeCmd.Flags().BoolVar(&anaRaw, "raw", false, "print markdown without terminal rendering")
	analyzeCmd.Flags().StringVarP(&anaModel, "model", "m", "", "model to use (default analyst_model from config)")
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
)

var (
	askDataset string
	askJSON    bool
	askRaw     bool
	askNoLLM   bool
	askStream  bool
	askModel   string
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer a question over the client, sales and journal data",
	Long: `Classify the question (aggregate, lookup or explain), run the matching engine over
the data directory and ask the model for an analysis of what was found.`,
	Example: `  analyst ask "2024년 매출 상위 5개 거래처"
  analyst ask --dataset 영업일지 "한국상사 최근 방문 기록"
  analyst ask --no-llm "J-6 항목 설명"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("question is empty")
		}
		if !engine.ValidFilter(askDataset) {
			return fmt.Errorf("invalid --dataset %q (use 전체, 거래처, 매출 or 영업일지)", askDataset)
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		var rt ai.Runtime
		if !askNoLLM {
			if err := c.Validate(); err != nil {
				return err
			}
			if rt, _, err = runtimeFactory(c, provider); err != nil {
				return err
			}
		}
		cls, err := loadClassifier(c)
		if err != nil {
			return err
		}
		live, err := openWorkspace(cmd.Context(), c)
		if err != nil {
			return err
		}
		opts := []engine.Option{engine.WithLogger(logger), engine.WithClassifier(cls)}
		if !askNoLLM {
			opts = append(opts, engine.WithSearcher(openSearcher(c)))
		}
		model := c.Model
		if askModel != "" {
			model = askModel
		}
		proc := analyst.NewProcessor(cls, live.Current().Engine(opts...), rt, settings(c, model), logger)
		return runAsk(cmd.Context(), cmd.OutOrStdout(), proc, rt, query)
	},
}

func runAsk(ctx context.Context, out io.Writer, proc *analyst.Processor, rt ai.Runtime, query string) error {
	stream := askStream && !askJSON && rt != nil
	if stream {
		if _, ok := rt.(ai.StreamRuntime); !ok {
			fmt.Fprintln(out, "⚠ Streaming not supported for this provider; falling back to non-streaming.")
			stream = false
		}
	}
	var onDelta func(string)
	if stream {
		onDelta = func(delta string) { fmt.Fprint(out, delta) }
	}
	resp := proc.Process(ctx, query, askDataset, onDelta)

	if askJSON {
		payload := struct {
			*analyst.Response
			Error string `json:"error,omitempty"`
			Hint  string `json:"hint,omitempty"`
		}{Response: resp}
		if resp.Err != nil {
			payload.Error, payload.Hint = resp.Err.Error(), ai.Hint(resp.Err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	if stream && resp.Err == nil {
		fmt.Fprintln(out)
		printMarkdown(out, fmt.Sprintf("---\n## 📋 수집된 데이터\n\n```\n%s\n```", resp.DataSummary), askRaw)
		return nil
	}
	printMarkdown(out, resp.Format(), askRaw)
	if resp.Err != nil {
		printFailure(out, resp.Err)
	}
	return nil
}

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:   "classify <question...>",
	Short: "Show how a question would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		cls, err := loadClassifier(c)
		if err != nil {
			return err
		}
		res := cls.Classify(strings.Join(args, " "))
		out := cmd.OutOrStdout()
		if classifyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprintf(out, "mode:       %s (%s)\n", res.Mode, res.Mode.Label())
		fmt.Fprintf(out, "confidence: %.2f\n", res.Confidence)
		fmt.Fprintf(out, "reasoning:  %s\n", res.Reasoning)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(classifyCmd)

	askCmd.Flags().StringVarP(&askDataset, "dataset", "d", engine.All, "dataset filter: 전체|거래처|매출|영업일지")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the response as JSON")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print markdown without terminal rendering")
	askCmd.Flags().BoolVar(&askNoLLM, "no-llm", false, "skip the model call and print the collected data only")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the analysis as it is generated")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model to use (default from config)")

	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print the result as JSON")
}

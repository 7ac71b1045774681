package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/analysis"
	"github.com/liszzmword/ai-data-analyst/internal/table"
	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

var (
	profDelimiter  string
	profSampleRows int
	profMaxRows    int
	profGroupBy    []string
	profCorr       bool
	profOutliers   bool
	profOutlierThr float64
	profWorkers    int
	profOutputDir  string
	profQuiet      bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <files...>",
	Short: "Profile CSV/TSV/XLSX files: columns, statistics, groups and correlations",
	Example: `  analyst profile data/*.csv
  analyst profile --group-by 거래처 --correlations "sales data.csv"
  analyst profile --output reports/ data/*.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := analysis.ExpandPaths(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}

		load := table.LoadOptions{Encodings: table.UploadEncodings, Normalize: true}
		switch profDelimiter {
		case "":
		case ",":
			load.Delimiter = ','
		case "\t", "tab":
			load.Delimiter = '\t'
		case ";":
			load.Delimiter = ';'
		default:
			return fmt.Errorf("unsupported --delimiter: %s", profDelimiter)
		}

		opt := analysis.DefaultOptions()
		if profSampleRows >= 0 {
			opt.SampleRows = profSampleRows
		}
		if profMaxRows > 0 {
			opt.MaxRows = profMaxRows
		}
		opt.GroupBy = profGroupBy
		opt.Correlations = profCorr
		opt.Outliers = profOutliers
		if profOutlierThr > 0 {
			opt.OutlierThreshold = profOutlierThr
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		progress := func(done, total int, path string) {
			if !profQuiet {
				fmt.Fprintf(errOut, "[%d/%d] Processed %s\n", done, total, filepath.Base(path))
			}
		}
		results, err := analysis.ProfileFiles(cmd.Context(), files, load, opt, profWorkers, progress)
		if err != nil {
			return err
		}

		if profOutputDir != "" {
			if err := utils.EnsureDir(profOutputDir); err != nil {
				return err
			}
		}
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(errOut, "✗ %s: %v\n", res.Path, res.Err)
				continue
			}
			md := res.Report.Markdown()
			if profOutputDir == "" {
				fmt.Fprintln(out, md)
				continue
			}
			base := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path))
			dest := filepath.Join(profOutputDir, base+".summary.md")
			if err := utils.SafeWriteFile(dest, []byte(md)); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			if !profQuiet {
				fmt.Fprintf(out, "✓ %s → %s\n", filepath.Base(res.Path), dest)
			}
		}
		if failed == len(results) {
			return fmt.Errorf("no file could be profiled")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVar(&profDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", -1, "number of sample rows to include (default 3)")
	profileCmd.Flags().IntVar(&profMaxRows, "max-rows", 0, "maximum rows to process (default 100000)")
	profileCmd.Flags().StringSliceVar(&profGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	profileCmd.Flags().BoolVar(&profCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	profileCmd.Flags().BoolVar(&profOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	profileCmd.Flags().Float64Var(&profOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	profileCmd.Flags().IntVarP(&profWorkers, "workers", "w", 4, "files profiled concurrently")
	profileCmd.Flags().StringVarP(&profOutputDir, "output", "o", "", "directory to write <file>.summary.md reports to")
	profileCmd.Flags().BoolVarP(&profQuiet, "quiet", "q", false, "suppress progress and non-essential output")
}

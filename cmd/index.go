package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/retrieval"
)

var (
	idxForce   bool
	idxInclude []string
	idxExclude []string
	idxBatch   int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the semantic index over the field dictionary",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed codebook entries so explain questions also match by meaning",
	Long: `Embed every codebook entry with the configured embedding model and save the vectors
under index_dir. Entries whose text is unchanged reuse their vectors unless --force is set
or the embedding model changed.`,
	Example: `  analyst index build
  analyst index build --include "sales data" --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cb, err := loadCodebook()
		if err != nil {
			return err
		}
		emb, name, err := embedderFactory(c)
		if err != nil {
			return err
		}
		idx, err := retrieval.BuildIndex(cmd.Context(), emb, c.IndexDir, cb.Entries(), retrieval.BuildOptions{
			Force:         idxForce,
			EmbedProvider: name,
			EmbedModel:    c.EmbedModel,
			Include:       idxInclude,
			Exclude:       idxExclude,
			BatchSize:     idxBatch,
		})
		if err != nil {
			printFailure(cmd.ErrOrStderr(), err)
			return fmt.Errorf("build index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Indexed %d entries with %s/%s (dim %d) → %s\n",
			len(idx.Records), name, c.EmbedModel, idx.Meta.EmbedDim, retrieval.IndexPath(c.IndexDir))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexBuildCmd.Flags().BoolVar(&idxForce, "force", false, "re-embed every entry")
	indexBuildCmd.Flags().StringSliceVar(&idxInclude, "include", nil, "file kind patterns to index (repeatable)")
	indexBuildCmd.Flags().StringSliceVar(&idxExclude, "exclude", nil, "file kind patterns to skip (repeatable)")
	indexBuildCmd.Flags().IntVar(&idxBatch, "batch", 64, "entries per embedding request")
}

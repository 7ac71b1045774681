package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/server"
	"github.com/liszzmword/ai-data-analyst/internal/workspace"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyst over HTTP",
	Long: `Start the HTTP API: questions over the data directory (/api/ask), routing
(/api/classify), the field dictionary (/api/codebook) and chat over files uploaded in a
browser session (/api/files, /api/chat). With --watch the data directory is reloaded when
its files change.`,
	Example: `  analyst serve
  analyst serve --addr 127.0.0.1:9090 --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		rt, name, err := runtimeFactory(c, provider)
		if err != nil {
			return err
		}
		cls, err := loadClassifier(c)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		live, err := openWorkspace(ctx, c, workspace.WithReloadHook(func(s *workspace.Snapshot) {
			logger.Info("workspace reloaded",
				zap.Int("datasets", len(s.Tables)),
				zap.Strings("missing", s.Missing))
		}))
		if err != nil {
			return err
		}

		addr := c.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv, err := server.New(server.Config{
			Addr:          addr,
			SessionSecret: c.SessionSecret,
			Workspace:     live,
			Classifier:    cls,
			Searcher:      openSearcher(c),
			Runtime:       rt,
			Ask:           settings(c, c.Model),
			Chat:          settings(c, c.AnalystModel),
			Loader:        newLoader(c, live.Current().Codebook),
			Watch:         serveWatch,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (provider %s, model %s)\n", displayAddr(addr), name, c.Model)
		return srv.Serve(ctx)
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server_addr from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the data directory when its files change")
}

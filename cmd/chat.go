package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/notebook"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
)

const (
	modeAsk   = "ask"
	modeFiles = "files"
)

var (
	chatFiles    []string
	chatNotebook string
	chatNoImages bool
	chatRaw      bool
	chatMode     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive analysis session",
	Long: `Start an interactive session. In ask mode questions go through the router over the
data directory; in files mode they are answered from the files given with --file or the
files of a notebook, joined by company when possible. Type .help for commands.`,
	Example: `  analyst chat
  analyst chat --file sales_2024.xlsx --file 거래처.csv
  analyst chat --notebook q3-review`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		s, err := newChatSession(cmd.Context(), cmd.OutOrStdout(), c, rt)
		if err != nil {
			return err
		}
		return s.run(cmd.Context())
	},
}

// chatSession holds the state of one REPL. It is driven line by line so the
// command handling does not depend on a terminal.
type chatSession struct {
	out     io.Writer
	mode    string
	raw     bool
	images  bool
	proc    *analyst.Processor
	smart   *analyst.SmartAnalyst
	loader  *upload.Loader
	files   *upload.Set
	history *analyst.Conversation
	nb      *notebook.Notebook
}

func newChatSession(ctx context.Context, out io.Writer, c *cfgpkg.Global, rt ai.Runtime) (*chatSession, error) {
	s := &chatSession{
		out:     out,
		raw:     chatRaw,
		images:  !chatNoImages,
		files:   &upload.Set{},
		history: &analyst.Conversation{},
	}

	live, err := openWorkspace(ctx, c)
	if err != nil {
		fmt.Fprintf(out, "⚠ %v\n  ask mode is unavailable.\n", err)
	} else {
		cls, err := loadClassifier(c)
		if err != nil {
			return nil, err
		}
		eng := live.Current().Engine(
			engine.WithLogger(logger),
			engine.WithClassifier(cls),
			engine.WithSearcher(openSearcher(c)))
		s.proc = analyst.NewProcessor(cls, eng, rt, settings(c, c.Model), logger)
	}
	if live != nil {
		s.loader = newLoader(c, live.Current().Codebook)
	} else {
		s.loader = newLoader(c, optionalCodebook(c))
	}

	if chatNotebook != "" {
		nb, err := notebook.Resolve(c.NotebooksDir, chatNotebook)
		if err != nil {
			return nil, err
		}
		files, errs := nb.Open(s.loader)
		for _, e := range errs {
			fmt.Fprintf(out, "⚠ %v\n", e)
		}
		s.nb, s.files, s.history = nb, files, nb.Conversation()
	}
	s.smart = analyst.NewSmartAnalyst(rt, notebookSettings(settings(c, c.AnalystModel), s.nb), logger)
	for _, path := range chatFiles {
		if err := s.load(path); err != nil {
			return nil, err
		}
	}

	switch {
	case chatMode != "":
		if err := s.setMode(chatMode); err != nil {
			return nil, err
		}
	case s.files.Len() > 0 || s.proc == nil:
		s.mode = modeFiles
	default:
		s.mode = modeAsk
	}
	return s, nil
}

func (s *chatSession) prompt() string { return fmt.Sprintf("analyst[%s]> ", s.mode) }

func (s *chatSession) run(ctx context.Context) error {
	historyFile := ""
	if dir, err := cfgpkg.Dir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    chatCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	fmt.Fprintf(s.out, "AI 데이터 분석 (%s mode, %d files)\n", s.mode, s.files.Len())
	fmt.Fprintln(s.out, "Type .help for commands, .quit to exit")
	fmt.Fprintln(s.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.handle(ctx, line) {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// handle processes one input line and reports whether the session ends.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ".") {
		return s.command(line)
	}
	s.answer(ctx, line)
	fmt.Fprintln(s.out)
	return false
}

func (s *chatSession) command(line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printChatHelp(s.out)
	case ".files":
		s.listFiles()
	case ".load":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Usage: .load <path>")
			break
		}
		if err := s.load(strings.Join(parts[1:], " ")); err != nil {
			fmt.Fprintf(s.out, "✗ %v\n", err)
		}
	case ".clear":
		s.history.Reset()
		if s.nb != nil {
			s.nb.ClearHistory()
			s.save()
		}
		fmt.Fprintln(s.out, "✓ 대화 기록을 지웠습니다")
	case ".mode":
		if len(parts) < 2 {
			fmt.Fprintf(s.out, "mode: %s\n", s.mode)
			break
		}
		if err := s.setMode(parts[1]); err != nil {
			fmt.Fprintf(s.out, "✗ %v\n", err)
		}
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func (s *chatSession) setMode(mode string) error {
	switch mode {
	case modeAsk:
		if s.proc == nil {
			return errors.New("ask mode needs the data directory")
		}
	case modeFiles:
	default:
		return fmt.Errorf("unknown mode %q (use ask or files)", mode)
	}
	s.mode = mode
	return nil
}

func (s *chatSession) load(path string) error {
	f, err := s.loader.LoadFile(path)
	if err != nil {
		return err
	}
	s.files.Add(f)
	if s.nb != nil {
		if _, err := s.nb.AddFile(s.loader, path, ""); err != nil {
			return err
		}
		s.save()
	}
	fmt.Fprintf(s.out, "✓ %s\n", f.Name)
	return nil
}

func (s *chatSession) listFiles() {
	files := s.files.List()
	if len(files) == 0 {
		fmt.Fprintln(s.out, "업로드된 파일이 없습니다")
		return
	}
	rows := make([][2]string, 0, len(files))
	for _, f := range files {
		desc := string(f.Kind)
		if f.IsTable() {
			desc = fmt.Sprintf("%s, %d행 × %d열", f.Kind, f.Table.Len(), f.Table.Width())
		}
		rows = append(rows, [2]string{f.Name, desc})
	}
	render.Pairs(s.out, [2]string{"파일", "내용"}, rows)
}

func (s *chatSession) answer(ctx context.Context, query string) {
	if s.mode == modeAsk {
		resp := s.proc.Process(ctx, query, engine.All, nil)
		printMarkdown(s.out, resp.Format(), s.raw)
		if resp.Err != nil {
			printFailure(s.out, resp.Err)
			return
		}
		s.record(query, resp.Analysis)
		return
	}
	if s.files.Len() == 0 {
		fmt.Fprintln(s.out, "먼저 파일을 불러오세요 (.load <path>)")
		return
	}
	res := s.smart.Analyze(ctx, s.files, analyst.Request{
		Query:         query,
		History:       s.history,
		IncludeImages: s.images,
	})
	printMarkdown(s.out, res.Answer, s.raw)
	if res.Err != nil {
		printFailure(s.out, res.Err)
		return
	}
	s.record(query, res.Answer)
}

// record persists an exchange in the notebook, if one is open. The files
// flow has already added it to the conversation window.
func (s *chatSession) record(query, answer string) {
	if s.nb == nil {
		return
	}
	s.nb.Record(query, answer)
	s.save()
}

func (s *chatSession) save() {
	if err := s.nb.Save(); err != nil {
		fmt.Fprintf(s.out, "⚠ save notebook: %v\n", err)
	}
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .files            List loaded files
  .load <path>      Load a CSV, Excel, image, PDF or note (.txt, .md, .docx)
  .clear            Forget the conversation history
  .mode [ask|files] Show or switch the answer mode
  .quit / .exit     Exit

Modes:
  ask    questions run over the client, sales and journal data
  files  questions are answered from the loaded files
`
	fmt.Fprintln(w, help)
}

func chatCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".files"),
		readline.PcItem(".load"),
		readline.PcItem(".clear"),
		readline.PcItem(".mode", readline.PcItem(modeAsk), readline.PcItem(modeFiles)),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringArrayVarP(&chatFiles, "file", "f", nil, "file to analyze (repeatable)")
	chatCmd.Flags().StringVarP(&chatNotebook, "notebook", "n", "", "notebook whose files and history to use")
	chatCmd.Flags().BoolVar(&chatNoImages, "no-images", false, "do not send images to the model")
	chatCmd.Flags().BoolVar(&chatRaw, "raw", false, "print markdown without terminal rendering")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "initial mode: ask|files (default files when files are loaded)")
}

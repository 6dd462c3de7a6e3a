package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/provider"
	"github.com/harun/gemchat/pkg/render"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var chatStyle string

var newCompletionProvider = func(ctx context.Context, cfg config.GeminiConfig, opts provider.Options) (chat.CompletionProvider, error) {
	return provider.New(ctx, cfg, opts)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Chat with Gemini in the terminal. Each line you enter is one message.
Type /history to print the conversation and /quit to leave.
The conversation is forgotten when the command exits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatStyle, "style", "auto", "markdown style (auto, dark, light, notty)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if logLevel == "" {
		cfg.Logging.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := newCompletionProvider(ctx, cfg.Gemini, provider.Options{Logger: log.Component("provider")})
	if err != nil {
		return err
	}

	mgr, err := chat.NewManager(chat.Config{
		Provider: p,
		Timeout:  cfg.Gemini.Timeout(),
		Logger:   log.Component("chat"),
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	term, err := render.NewTerminal(chatStyle, 80)
	if err != nil {
		return err
	}

	repl := &chatREPL{
		manager: mgr,
		term:    term,
		ui:      cfg.UI,
		in:      cmd.InOrStdin(),
		out:     cmd.OutOrStdout(),
		logger:  log.Component("cli"),
	}
	return repl.run(ctx)
}

// chatREPL is the terminal runtime instance: one manager, one session.
type chatREPL struct {
	manager *chat.Manager
	term    *render.Terminal
	ui      config.UIConfig
	in      io.Reader
	out     io.Writer
	logger  zerolog.Logger
}

func (r *chatREPL) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := r.manager.GetOrCreateSession()

	fmt.Fprintln(r.out, r.ui.Header)
	fmt.Fprintln(r.out, "Type /history to show the conversation, /quit to leave.")
	fmt.Fprintln(r.out)

	lines, scanErr := readLines(ctx, r.in)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(r.out, "%s\n> ", r.ui.Placeholder)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				if ctx.Err() != nil {
					return nil
				}
				return *scanErr
			}
			line = l
		}

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/history":
			r.printHistory()
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		fmt.Fprintln(r.out, r.ui.SpinnerText)
		reply, err := r.manager.SendUserMessage(ctx, s, line)
		if err != nil {
			r.logger.Debug().Err(err).Msg("Exchange failed")
			fmt.Fprintf(r.out, "Error: %v\n\n", err)
			continue
		}
		if reply == nil {
			continue
		}

		fmt.Fprint(r.out, r.term.Render(reply.Text))
		fmt.Fprintln(r.out)
	}
}

// readLines scans in on its own goroutine so the prompt can be interrupted.
// The channel closes at EOF; scanErr is set before it closes.
func readLines(ctx context.Context, in io.Reader) (<-chan string, *error) {
	lines := make(chan string)
	var scanErr error

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	return lines, &scanErr
}

func (r *chatREPL) printHistory() {
	s := r.manager.GetOrCreateSession()
	if s.Len() == 0 {
		fmt.Fprintln(r.out, "(no messages yet)")
		fmt.Fprintln(r.out)
		return
	}
	for msg := range r.manager.History(s) {
		fmt.Fprintf(r.out, "[%s] %s\n", msg.Role, msg.Text)
	}
	fmt.Fprintln(r.out)
}

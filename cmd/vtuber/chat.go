package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vtuber/internal/companion"
	"vtuber/internal/events"
	"vtuber/internal/logging"
	"vtuber/internal/memory"
)

var chatPersona string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts a conversation with the active persona.

Commands:
  /persona <name>   switch persona
  /personas         list personas
  /history          show recent memory
  /search <text>    search memory
  /stats            show memory and error statistics
  /clear            forget the conversation
  /quit             save and exit`,
	RunE: runChat,
}

const chatHelp = "commands: /persona <name>, /personas, /history, /search <text>, /stats, /clear, /quit"

func runChat(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionCfg := *cfg
	if chatPersona != "" {
		sessionCfg.Persona.Default = chatPersona
	}

	s, err := companion.Open(ctx, &sessionCfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if err := s.Companion.Start(ctx); err != nil {
		fmt.Fprintln(out, warnStyle.Render("memory could not be restored: "+err.Error()))
	}
	s.Bus.Subscribe(events.KindPersonaChange, func(ev events.Event) error {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("(personas reloaded: %v)", ev.Payload["reloaded"])))
		return nil
	})

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("vtuber: %s/%s", s.LLM.Provider(), s.LLM.Model())))
	fmt.Fprintln(out, mutedStyle.Render(chatHelp))
	fmt.Fprintf(out, "%s %s\n", personaStyle.Render(activeName(s)+":"), s.Personas.Greeting())

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := scanLines(loopCtx, cmd.InOrStdin())

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		defer cancel()
		return chatLoop(gctx, s, lines, out)
	})
	if every := sessionCfg.GetAutosaveInterval(); every > 0 {
		g.Go(func() error {
			autosave(gctx, s.Memory, every)
			return nil
		})
	}
	loopErr := g.Wait()

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer done()
	farewell := s.Personas.Farewell()
	if err := s.Companion.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(out, warnStyle.Render("memory was not saved: "+err.Error()))
	}
	fmt.Fprintf(out, "%s %s\n", personaStyle.Render(activeName(s)+":"), farewell)
	return loopErr
}

func activeName(s *companion.Session) string {
	if p, ok := s.Personas.Active(); ok {
		return p.Name
	}
	return "AI"
}

func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// chatLoop handles input until /quit, end of input or cancellation.
func chatLoop(ctx context.Context, s *companion.Session, lines <-chan string, out io.Writer) error {
	for {
		fmt.Fprint(out, userStyle.Render("You: "))
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runSlashCommand(ctx, s, line, out); quit {
				return nil
			}
			continue
		}

		resp, err := s.Companion.HandleText(ctx, line)
		if err != nil {
			fmt.Fprintln(out, warnStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintf(out, "%s %s %s\n",
			personaStyle.Render(activeName(s)+":"),
			resp.Response,
			emotionStyle.Render("["+resp.Emotion+"]"))
	}
}

// runSlashCommand executes one chat command and reports whether to quit.
func runSlashCommand(ctx context.Context, s *companion.Session, line string, out io.Writer) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, mutedStyle.Render(chatHelp))
	case "/persona":
		if arg == "" {
			fmt.Fprintln(out, warnStyle.Render("usage: /persona <name>"))
			return false
		}
		if !s.Personas.Activate(ctx, arg) {
			fmt.Fprintln(out, warnStyle.Render("unknown persona: "+arg))
			return false
		}
		fmt.Fprintf(out, "%s %s\n", personaStyle.Render(activeName(s)+":"), s.Personas.Greeting())
	case "/personas":
		active, _ := s.Personas.Active()
		for _, p := range s.Personas.List() {
			marker := "  "
			if p.Key() == active.Key() {
				marker = "* "
			}
			fmt.Fprintf(out, "%s%s %s\n", marker, personaStyle.Render(p.Name), mutedStyle.Render(p.Description))
		}
	case "/history":
		printTurns(out, s.Memory.Recent(10))
	case "/search":
		if arg == "" {
			fmt.Fprintln(out, warnStyle.Render("usage: /search <text>"))
			return false
		}
		printTurns(out, s.Memory.Search(arg, 5))
	case "/stats":
		st := s.Memory.Stats()
		fmt.Fprintf(out, "memory: %d/%d entries, backend=%s, encrypted=%v\n", st.Total, st.Max, st.Backend, st.Encrypted)
		fmt.Fprintf(out, "events: %d in history\n", len(s.Bus.History(nil, -1)))
		for kind, n := range s.Errors.Stats() {
			fmt.Fprintf(out, "errors: %s=%d\n", kind, n)
		}
	case "/clear":
		s.Memory.Clear()
		s.LLM.ClearHistory()
		fmt.Fprintln(out, mutedStyle.Render("conversation cleared"))
	default:
		fmt.Fprintln(out, warnStyle.Render("unknown command: "+name))
	}
	return false
}

func printTurns(out io.Writer, turns []memory.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("(nothing yet)"))
		return
	}
	for _, t := range turns {
		fmt.Fprintf(out, "%s %-9s %s\n",
			mutedStyle.Render(t.Timestamp.Local().Format("15:04:05")),
			string(t.Role),
			t.Content)
	}
}

func autosave(ctx context.Context, mem *memory.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := mem.Persist(ctx); err != nil {
				logging.MemoryWarn("autosave failed: %v", err)
			}
		}
	}
}

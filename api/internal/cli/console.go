package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"physics-tutor/api/internal/app"
	"physics-tutor/api/internal/config"
	"physics-tutor/api/internal/llm"
	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/tutor"
)

func newConsoleCmd() *cobra.Command {
	var (
		engine    string
		model     string
		noDiagram bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the tutor in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if engine != "" {
				cfg.TextEngine = config.NormalizeEngine(engine)
			}
			if noDiagram {
				cfg.Diagrams = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.Nop()
			if verbose {
				if log, err = logger.New(cfg.LogMode); err != nil {
					return err
				}
				defer log.Sync()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			deps, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			if model != "" {
				ms, ok := deps.Default.(llm.ModelSetter)
				if !ok {
					return fmt.Errorf("engine %s does not support --model", deps.Default.Name())
				}
				ms.SetModel(model)
			}
			return NewConsole(deps.NewTutor(nil), cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "text engine (groq|gemini|gpt|deepseek)")
	cmd.Flags().StringVar(&model, "model", "", "override the engine's model")
	cmd.Flags().BoolVar(&noDiagram, "no-diagram", false, "skip diagram generation")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log provider calls to stderr")
	return cmd
}

// Console runs one tutoring session over a line-oriented reader and writer.
type Console struct {
	tutor *tutor.Tutor
	in    io.Reader
	out   io.Writer
	sess  tutor.Session
}

func NewConsole(t *tutor.Tutor, in io.Reader, out io.Writer) *Console {
	return &Console{tutor: t, in: in, out: out, sess: tutor.NewSession()}
}

// Session returns the current session state.
func (c *Console) Session() tutor.Session { return c.sess }

// Run reads lines until EOF, /end or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)

	fmt.Fprintf(c.out, "\n--- Physics tutor (%s) ---\n", c.tutor.EngineName())
	fmt.Fprintln(c.out, "(/reset to start over, /end to quit)")

	for {
		if c.sess.CurrentState() == tutor.AwaitingAnswer {
			fmt.Fprint(c.out, "\nYour answer: ")
		} else {
			fmt.Fprint(c.out, "\nStudent: ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "/end", "/quit":
			fmt.Fprintln(c.out, "\nConversation ended. Keep exploring physics!")
			return nil
		case "/reset":
			c.sess = c.tutor.Reset(c.sess)
			fmt.Fprintln(c.out, "Conversation reset. Ask a new question.")
			continue
		}

		var d tutor.Display
		c.sess, d = c.tutor.Submit(ctx, c.sess, line)
		c.print(d)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	fmt.Fprintln(c.out)
	return scanner.Err()
}

func (c *Console) print(d tutor.Display) {
	if d.Explanation != "" {
		fmt.Fprintf(c.out, "\n👩‍🏫 %s\n", d.Explanation)
	}
	if d.DiagramURL != "" {
		fmt.Fprintf(c.out, "\n🖼  Diagram: %s\n", d.DiagramURL)
	}
	if d.FollowUp != "" {
		fmt.Fprintf(c.out, "\n❓ Follow-up question: %s\n", d.FollowUp)
	}
	if d.Evaluation != "" {
		fmt.Fprintf(c.out, "\n📝 %s\n", d.Evaluation)
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(c.out, "⚠️  %s\n", w)
	}
	for _, e := range d.Errors {
		fmt.Fprintf(c.out, "❌ %s\n", e)
	}
}

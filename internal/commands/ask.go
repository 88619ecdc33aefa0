package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comigor/sonar-go/internal/chat"
	"github.com/comigor/sonar-go/internal/reveal"
)

var instantFlag bool

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a single prompt and print the reply",
	Long: `Send a single prompt and print the reply with the typewriter effect.
The prompt is read from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := a.ctrl.Submit(cmd.Context(), prompt)
		switch {
		case out.Skipped():
			return fmt.Errorf("empty prompt")
		case out.Err != nil:
			fmt.Fprintln(cmd.ErrOrStderr(), chat.SendFailedNotice)
			return out.Err
		}

		if instantFlag {
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply.Content)
			return nil
		}
		return typewrite(cmd.Context(), cmd.OutOrStdout(), out.Reply.Content, a.cfg.Reveal.Interval)
	},
}

func init() {
	askCmd.Flags().BoolVar(&instantFlag, "instant", false, "Print the reply without animation")
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no prompt given")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// typewrite reveals text on w one character per interval. Cancelling ctx
// stops the reveal where it is.
func typewrite(ctx context.Context, w io.Writer, text string, interval time.Duration) error {
	done := make(chan struct{})
	a := reveal.New(reveal.TimerScheduler{},
		reveal.WithInterval(interval),
		reveal.OnTick(func(r rune) { fmt.Fprint(w, string(r)) }),
		reveal.OnComplete(func() { close(done) }),
	)
	a.SetText(text)

	select {
	case <-done:
	case <-ctx.Done():
		a.Stop()
	}
	_, err := fmt.Fprintln(w)
	return err
}

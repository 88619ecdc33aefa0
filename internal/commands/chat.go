package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/sonar-go/internal/logger"
	"github.com/comigor/sonar-go/internal/tui"
)

var noMarkdownFlag bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session in the terminal.

Keys:
  enter    send the message
  ctrl+j   insert a newline
  tab      switch model
  ctrl+n   start a new chat
  esc      quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		// the TUI owns the terminal; logs go to the configured file or nowhere
		var out io.Writer = io.Discard
		if a.cfg.Log.File != "" {
			f, err := os.OpenFile(a.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			out = f
		}
		logger.SetOutput(out)
		defer logger.SetOutput(os.Stderr)

		return tui.Run(a.ctrl, tui.Options{
			Context:  cmd.Context(),
			Identity: a.identity,
			Interval: a.cfg.Reveal.Interval,
			Markdown: !noMarkdownFlag,
		})
	},
}

func init() {
	chatCmd.Flags().BoolVar(&noMarkdownFlag, "no-markdown", false, "Show replies as plain text")
}

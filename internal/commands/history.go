package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comigor/sonar-go/internal/auth"
	"github.com/comigor/sonar-go/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved chat history",
}

var historyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the history database and apply the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cmd.Context(), cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "history schema ready at %s\n", cfg.History.DBPath)
		return nil
	},
}

var historySessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, account, err := openSignedIn(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions(cmd.Context(), account.ID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUPDATED\tMODEL\tTITLE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Model, s.Title)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, account, err := openSignedIn(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err := store.GetSession(cmd.Context(), account.ID, args[0])
		if err != nil {
			return err
		}
		msgs, err := store.ListMessages(cmd.Context(), sess.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n\n", sess.Title, sess.Model)
		for _, m := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s:\n%s\n\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the signed-in account with all its sessions and messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, account, err := openSignedIn(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteAccount(cmd.Context(), account.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History deleted.")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyInitCmd, historySessionsCmd, historyShowCmd, historyForgetCmd)
}

// openSignedIn opens the store and looks up the account of the current user.
func openSignedIn(cmd *cobra.Command) (*history.Store, history.Account, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, history.Account{}, err
	}
	id, err := auth.FromConfig(cfg.Identity).CurrentUser(cmd.Context())
	if err != nil {
		return nil, history.Account{}, err
	}
	if id == nil {
		return nil, history.Account{}, errors.New("sign in to use chat history")
	}

	store, err := history.Open(cmd.Context(), cfg.History.DBPath)
	if err != nil {
		return nil, history.Account{}, err
	}
	account, err := store.FindAccount(cmd.Context(), id.UID)
	if err != nil {
		store.Close()
		if errors.Is(err, history.ErrNotFound) {
			return nil, history.Account{}, fmt.Errorf("no saved history for %s", id.Name())
		}
		return nil, history.Account{}, err
	}
	return store, account, nil
}

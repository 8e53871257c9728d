package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"parley/render"
	"parley/storage"
)

const timeLayout = "2006-01-02 15:04"

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved chat sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return listSessions(cmd.OutOrStdout(), a.sessions)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search QUERY",
		Short: "Search session names and messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return searchSessions(cmd.OutOrStdout(), a.sessions, strings.Join(args, " "))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return showSession(cmd.OutOrStdout(), a.sessions, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			name := strings.Join(args[1:], " ")
			if err := a.sessions.Rename(args[0], name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Renamed session "+args[0]))
			return nil
		},
	})

	var output string
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return exportSession(cmd.OutOrStdout(), a.sessions, args[0], output)
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of standard output")
	cmd.AddCommand(exportCmd)

	var force bool
	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return deleteSession(cmd.OutOrStdout(), a.sessions, args[0], force)
		},
	}
	deleteCmd.Flags().BoolVarP(&force, "force", "f", false, "delete even if another process holds the session")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func listSessions(out io.Writer, sessions *storage.SessionStorage) error {
	list, err := sessions.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	current, _ := sessions.LoadCurrentSessionID()
	for _, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-32s %4d msgs  %s  %s\n",
			marker,
			s.ID,
			render.Preview(s.Name),
			s.MessageCount,
			s.UpdatedAt.Local().Format(timeLayout),
			dimStyle.Render(s.Provider.ID+"/"+s.Provider.Model),
		)
	}
	return nil
}

func searchSessions(out io.Writer, sessions *storage.SessionStorage, query string) error {
	matches, err := storage.NewSearchIndex(sessions).Search(query)
	if err != nil {
		return fmt.Errorf("failed to search sessions: %w", err)
	}
	if len(matches) == 0 {
		fmt.Fprintf(out, "No matches for %q.\n", query)
		return nil
	}
	for _, m := range matches {
		where := "name"
		if m.MessageIndex >= 0 {
			where = fmt.Sprintf("#%d %s", m.MessageIndex, m.Sender)
		}
		fmt.Fprintf(out, "%s  %s  %s\n  %s\n",
			m.SessionID,
			render.Preview(m.SessionName),
			dimStyle.Render(where),
			m.Preview,
		)
	}
	return nil
}

func showSession(out io.Writer, sessions *storage.SessionStorage, id string) error {
	s, err := sessions.Load(id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	fmt.Fprintln(out, render.New(out, render.Options{Plain: true}).Transcript(s))
	return nil
}

func exportSession(out io.Writer, sessions *storage.SessionStorage, id, path string) error {
	if path == "" {
		return sessions.Export(id, out)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := sessions.Export(id, f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Exported session "+id+" to "+path))
	return nil
}

func deleteSession(out io.Writer, sessions *storage.SessionStorage, id string, force bool) error {
	s, err := sessions.Load(id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if !force {
		locked, err := sessions.CheckSessionLock(id)
		if err != nil {
			return err
		}
		if locked {
			return fmt.Errorf("session %s is open in another parley process (use --force)", id)
		}
	}
	if err := sessions.Delete(id); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Deleted session "+id))
	return nil
}

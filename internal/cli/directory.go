package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
)

const timeLayout = "2006-01-02 15:04"

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users connected to the chat service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, ts, err := a.signedIn()
			if err != nil {
				return err
			}

			token, err := ts.Token(cmd.Context())
			if err != nil {
				return err
			}

			users, err := a.client.Users(cmd.Context(), token)
			if err != nil {
				return err
			}

			printUsers(a.out, users, sess.Handle)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <username>",
		Short: "Print the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, ts, err := a.signedIn()
			if err != nil {
				return err
			}

			token, err := ts.Token(cmd.Context())
			if err != nil {
				return err
			}

			msgs, err := a.client.History(cmd.Context(), token, sess.Handle, args[0])
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintf(a.out, "No messages with %s yet.\n", args[0])
				return nil
			}
			for _, m := range msgs {
				if message.InConversation(m, sess.Handle, args[0]) {
					printMessage(a.out, m)
				}
			}
			return nil
		},
	}
}

// printUsers writes a table of users other than self.
func printUsers(w io.Writer, users []user.User, self string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tSTATUS")

	shown := 0
	for _, u := range users {
		if u.Handle == "" || u.Handle == self {
			continue
		}
		status := string(u.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Handle, u.FullName, status)
		shown++
	}
	tw.Flush()

	if shown == 0 {
		fmt.Fprintln(w, "Nobody else is online.")
	}
}

func printMessage(w io.Writer, m message.ChatMessage) {
	ts := "--"
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format(timeLayout)
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", ts, m.SenderID, m.Content)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stompchat/internal/app/api"
	"stompchat/internal/app/storage"
	"stompchat/internal/pkg/auth/jwt"
)

func newLoginCmd(a *app) *cobra.Command {
	var password, fullName string

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and remember the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(a.in, a.out)

			var username string
			if len(args) == 1 {
				username = args[0]
			}

			username, err := p.orAsk(username, "Username", false)
			if err != nil {
				return err
			}
			password, err := p.orAsk(password, "Password", true)
			if err != nil {
				return err
			}

			pair, err := a.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			// the token subject is the canonical handle
			handle := strings.TrimSpace(username)
			if claims, err := jwt.ParseUnverified(pair.AccessToken); err == nil && claims.Handle() != "" {
				handle = claims.Handle()
			}

			if fullName == "" {
				fullName = handle
			}
			if err := a.store.Save(storage.Session{Handle: handle, FullName: fullName, Tokens: pair}); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Signed in as %s.\n", handle)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVarP(&fullName, "name", "n", "", "display name announced to other users (defaults to the username)")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var r api.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(a.in, a.out)

			var err error
			if r.Username, err = p.orAsk(r.Username, "Username", false); err != nil {
				return err
			}
			if r.FullName, err = p.orAsk(r.FullName, "Full name", false); err != nil {
				return err
			}
			if r.Password, err = p.orAsk(r.Password, "Password", true); err != nil {
				return err
			}

			text, err := a.client.Register(cmd.Context(), r)
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&r.Username, "username", "u", "", "username, 3 to 10 characters")
	cmd.Flags().StringVarP(&r.FullName, "name", "n", "", "full name, 3 to 50 characters")
	cmd.Flags().StringVarP(&r.Password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVarP(&r.Email, "email", "e", "", "email address (optional)")
	cmd.Flags().StringVar(&r.Role, "role", api.DefaultRole, "account role")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

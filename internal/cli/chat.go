package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stompchat/internal/app/api"
	"stompchat/internal/app/chat"
	"stompchat/internal/app/transport"
	"stompchat/internal/handler"
	"stompchat/internal/pkg/logx"
)

func newChatCmd(a *app) *cobra.Command {
	var with string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect and chat interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), with)
		},
	}

	cmd.Flags().StringVarP(&with, "with", "w", "", "open the conversation with this user once connected")
	return cmd
}

func (a *app) runChat(parent context.Context, with string) error {
	sess, ts, err := a.signedIn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	token, err := ts.Token(ctx)
	if err != nil {
		return err
	}

	tr, err := transport.NewStomp(transportConfig(a.cfg))
	if err != nil {
		return err
	}

	session := chat.NewSession(tr, api.NewDirectory(a.client, ts), sessionOptions(a.cfg))
	defer session.Close()

	if a.cfg.StatusAddr != "" {
		router := handler.Router(&handler.AppDeps{Session: session, Config: a.cfg})
		go func() {
			if err := handler.Serve(ctx, a.cfg.StatusAddr, router); err != nil {
				logx.Error(err, "Status server failed", "addr", a.cfg.StatusAddr)
			}
		}()
	}

	lr, out, restore, err := openConsole(a.in, a.out)
	if err != nil {
		return err
	}
	defer restore()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		r := &renderer{out: out}
		for u := range updates {
			r.render(u)
		}
	}()

	fmt.Fprintf(out, "* connecting as %s...\n", sess.Handle)
	if err := session.Connect(ctx, chat.Credentials{Handle: sess.Handle, FullName: sess.FullName, Token: token}); err != nil {
		return err
	}
	fmt.Fprintln(out, "* type /help for commands")

	loop := &repl{session: session, out: out}
	if with != "" {
		loop.selectPeer(with)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := lr.ReadLine()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			session.Disconnect()
			return nil
		case line, ok := <-lines:
			if !ok || loop.handle(line) {
				session.Disconnect()
				unsubscribe()
				<-rendered
				return nil
			}
		}
	}
}

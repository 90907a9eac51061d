/*
Package cli implements the stompchat command line.

Every command shares the same setup: configuration is loaded, the global logger is
initialized on stderr, and a REST client plus the local session cache are built. Commands
that need a signed-in user load the cached session and refresh its access token when
needed.
*/
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stompchat/internal/app/api"
	"stompchat/internal/app/storage"
	"stompchat/internal/configs"
	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/logx"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg    *configs.AppConfig
	client *api.Client
	store  storage.SessionStore

	in  io.Reader
	out io.Writer
}

// NewRootCmd builds the command tree. Input and output default to the process's stdio.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}

	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "stompchat",
		Short: "Terminal client for the STOMP chat service",
		Long: `stompchat signs in to the chat backend over REST and chats with other
online users in real time over STOMP on WebSocket.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configPath, verbose)
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newUsersCmd(a),
		newHistoryCmd(a),
		newChatCmd(a),
	)

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd(os.Stdin, os.Stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}

func (a *app) setup(configPath string, verbose bool) error {
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logx.InitGlobalLogger(cfg.IsDevelopment(), os.Stderr)

	// the terminal is shared with the chat; only warnings show unless asked
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logx.Logger().Debug().
		Str("environment", cfg.Environment).
		Str("api_url", cfg.APIURL).
		Str("ws_url", cfg.WSURL).
		Msg("Configuration loaded successfully")

	client, err := api.New(cfg.APIURL)
	if err != nil {
		return err
	}

	store, err := storage.NewSessionStore(cfg.SessionFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.client = client
	a.store = store
	return nil
}

// signedIn loads the cached session and returns a token source that persists refreshed tokens.
func (a *app) signedIn() (*storage.Session, *api.TokenSource, error) {
	sess, err := a.store.Load()
	if err != nil {
		return nil, nil, err
	}

	ts := api.NewTokenSource(a.client, sess.Tokens, func(p api.TokenPair) {
		updated := *sess
		updated.Tokens = p
		updated.SavedAt = time.Time{}
		if err := a.store.Save(updated); err != nil {
			logx.Warn("Failed to persist refreshed token", "error", err.Error())
		}
	})
	return sess, ts, nil
}

// describe renders err for the terminal, preferring the user-facing message.
func describe(err error) string {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return err.Error()
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"stompchat/internal/app/chat"
	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
)

const helpText = `Commands:
  /users            list online users
  /select <user>    open the conversation with a user
  /who              show the connection and the open conversation
  /history          print the open conversation again
  /quit             disconnect and exit
Anything else is sent to the open conversation.`

// chatSession is the part of *chat.Session the interactive loop drives.
type chatSession interface {
	Snapshot() chat.Snapshot
	SelectUser(peer user.User) error
	Send(content string) (message.ChatMessage, error)
}

// repl executes one input line at a time.
type repl struct {
	session chatSession
	out     io.Writer
}

// handle runs line and reports whether the user asked to quit.
func (r *repl) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		if _, err := r.session.Send(line); err != nil {
			fmt.Fprintf(r.out, "! %s\n", describe(err))
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/users":
		snap := r.session.Snapshot()
		self := ""
		if snap.CurrentUser != nil {
			self = snap.CurrentUser.Handle
		}
		printUsers(r.out, snap.Roster, self)
	case "/select":
		r.selectPeer(arg)
	case "/who":
		r.who()
	case "/history":
		snap := r.session.Snapshot()
		if snap.SelectedPeer == nil {
			fmt.Fprintln(r.out, "! No conversation is open.")
			return false
		}
		for _, m := range snap.Timeline {
			printMessage(r.out, m)
		}
	default:
		fmt.Fprintf(r.out, "! Unknown command %s. Type /help.\n", cmd)
	}
	return false
}

func (r *repl) selectPeer(handle string) {
	if handle == "" {
		fmt.Fprintln(r.out, "! Usage: /select <user>")
		return
	}

	for _, u := range r.session.Snapshot().Roster {
		if u.Handle == handle {
			if err := r.session.SelectUser(u); err != nil {
				fmt.Fprintf(r.out, "! %s\n", describe(err))
			}
			return
		}
	}
	fmt.Fprintf(r.out, "! %s is not online.\n", handle)
}

func (r *repl) who() {
	snap := r.session.Snapshot()

	me := "nobody"
	if snap.CurrentUser != nil {
		me = snap.CurrentUser.Handle
	}
	fmt.Fprintf(r.out, "* %s, signed in as %s\n", snap.State, me)

	if snap.SelectedPeer != nil {
		fmt.Fprintf(r.out, "* talking to %s\n", snap.SelectedPeer.Handle)
	}
	if snap.LastError != "" {
		fmt.Fprintf(r.out, "* last error: %s\n", snap.LastError)
	}
}

// renderer prints session updates as they arrive. It only runs on the observer goroutine.
type renderer struct {
	out io.Writer

	state   chat.State
	peer    string
	printed int
	roster  string
}

func (r *renderer) render(u chat.Update) {
	snap := u.Snapshot

	switch u.Kind {
	case chat.UpdateState:
		if snap.State != r.state {
			r.state = snap.State
			fmt.Fprintf(r.out, "* %s\n", snap.State)
		}
	case chat.UpdateError:
		if snap.LastError != "" {
			fmt.Fprintf(r.out, "! %s\n", snap.LastError)
		}
	case chat.UpdateRoster:
		handles := make([]string, 0, len(snap.Roster))
		for _, p := range snap.Roster {
			handles = append(handles, p.Handle)
		}
		sort.Strings(handles)

		line := strings.Join(handles, ", ")
		if line == r.roster {
			return
		}
		r.roster = line
		if line == "" {
			line = "nobody"
		}
		fmt.Fprintf(r.out, "* online: %s\n", line)
	case chat.UpdateSelection:
		r.printed = 0
		switch {
		case snap.SelectedPeer != nil:
			r.peer = snap.SelectedPeer.Handle
			fmt.Fprintf(r.out, "* talking to %s\n", r.peer)
		case r.peer != "":
			fmt.Fprintf(r.out, "* conversation with %s closed\n", r.peer)
			r.peer = ""
		}
	case chat.UpdateTimeline:
		if len(snap.Timeline) < r.printed {
			r.printed = len(snap.Timeline)
		}
		for _, m := range snap.Timeline[r.printed:] {
			printMessage(r.out, m)
		}
		r.printed = len(snap.Timeline)
	}
}

package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if u, ok := a.sess.User(); ok {
		s = u.Username + " "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root runs the REPL on the app's input until the user exits.
func (a *App) Root(ctx context.Context) {
	a.printf("Welcome to chatsync (type 'help' for commands)\n")
	runREPL(ctx, a, a.getStatus, a.reader)
}

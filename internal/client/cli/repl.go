package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	Chats(ctx context.Context) error
	Filter(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Private(ctx context.Context, args []string) error
	Group(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Leave(ctx context.Context) error
	RemoveChat(ctx context.Context, args []string) error

	History(ctx context.Context) error
	Send(ctx context.Context, args []string) error
	File(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error

	Status(ctx context.Context, args []string) error
	Profile(ctx context.Context) error
	Password(ctx context.Context) error
	Theme(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, theme, exit"
	helpLoggedIn  = "Available commands: (l)ist, filter, search, chat, group, open, close, rmchat, " +
		"(h)istory, (s)end, file, edit, delete, retry, download, status, profile, password, theme, logout, exit"
)

// runREPL starts a read–eval–print loop for the chatsync CLI.
//
// It reads a line from the provided reader, parses the first token as the
// command and the rest as its arguments, and dispatches to methods on 'a'.
// Chat commands require a signed-in user. The loop exits on EOF or
// when the user types "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("chat %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue
		case "register":
			_ = a.Register(ctx)
			continue
		case "login":
			_ = a.Login(ctx)
			continue
		case "theme":
			_ = a.Theme(ctx, args)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if !a.isLoggedIn() {
			if isCommand(cmd) {
				printlnFn("Please login first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "l", "list":
			_ = a.Chats(ctx)
		case "filter":
			_ = a.Filter(ctx, args)
		case "search":
			_ = a.Search(ctx, args)
		case "chat":
			_ = a.Private(ctx, args)
		case "group":
			_ = a.Group(ctx, args)
		case "open":
			_ = a.Open(ctx, args)
		case "close":
			_ = a.Leave(ctx)
		case "rmchat":
			_ = a.RemoveChat(ctx, args)
		case "h", "history":
			_ = a.History(ctx)
		case "s", "send":
			_ = a.Send(ctx, args)
		case "file":
			_ = a.File(ctx, args)
		case "edit":
			_ = a.Edit(ctx, args)
		case "delete":
			_ = a.Delete(ctx, args)
		case "retry":
			_ = a.Retry(ctx, args)
		case "download":
			_ = a.Download(ctx, args)
		case "status":
			_ = a.Status(ctx, args)
		case "profile":
			_ = a.Profile(ctx)
		case "password":
			_ = a.Password(ctx)
		case "logout":
			_ = a.Logout(ctx)
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func isCommand(cmd string) bool {
	switch cmd {
	case "l", "list", "filter", "search", "chat", "group", "open", "close", "rmchat",
		"h", "history", "s", "send", "file", "edit", "delete", "retry", "download", "status", "profile", "password", "logout":
		return true
	}
	return false
}

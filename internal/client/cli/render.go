package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/msgsync"
	"github.com/dmitrijs2005/chatsync/internal/client/services"
	"github.com/dmitrijs2005/chatsync/internal/common"
)

// printf writes to the user. The dispatch loop prints through it too.
func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// report prints err in user terms.
func (a *App) report(err error) {
	a.printf("%s\n", describe(err))
}

func describe(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, services.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, services.ErrUserExists):
		return "Username or email is already taken"
	case errors.Is(err, common.ErrNotAuthenticated):
		return "Please login first"
	case errors.Is(err, msgsync.ErrNoOpenChat):
		return "Open a chat first"
	case errors.Is(err, msgsync.ErrSending):
		return "The message is still being sent"
	case errors.Is(err, common.ErrPermissionDenied):
		return "Not allowed: " + err.Error()
	case errors.Is(err, common.ErrRemoteUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "Server unavailable, try again later"
	default:
		return "Error: " + err.Error()
	}
}

func chatLine(n int, c models.Chat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%2d. %s", n, c.Name)
	if c.Type == models.ChatGroup {
		b.WriteString(" [group]")
	}
	if c.UnreadCount > 0 {
		fmt.Fprintf(&b, " (%d new)", c.UnreadCount)
	}
	if p := c.LastMessagePreview(); p != "" {
		b.WriteString(": " + p)
	}
	return b.String()
}

func messageLine(n int, m models.Message, me string) string {
	who := m.SenderName
	if m.SenderID == me {
		who = "you"
	} else if who == "" {
		who = m.SenderID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%2d. [%s] %s: %s", n, m.CreatedAt.Local().Format("15:04"), who, m.DisplayContent())
	if m.Attachment != nil && !m.IsDeleted {
		fmt.Fprintf(&b, " (%s)", m.Attachment.SizeFormatted())
	}
	if m.IsEdited && !m.IsDeleted {
		b.WriteString(" (edited)")
	}
	switch m.Status {
	case models.MessageSending:
		b.WriteString(" ...")
	case models.MessageFailed:
		b.WriteString(" [failed]")
	}
	return b.String()
}

// MessageReceived prints a message from another user as it arrives.
func (a *App) MessageReceived(chatID string, m models.Message) {
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	a.printf("\n<< %s: %s\n", who, m.DisplayContent())
}

// OperationFailed reports a rolled back or failed optimistic operation.
func (a *App) OperationFailed(op msgsync.Op, chatID, messageID string, err error) {
	switch op {
	case msgsync.OpSend:
		a.printf("\n!! message not sent (%s); use retry\n", describe(err))
	default:
		a.printf("\n!! %s reverted (%s)\n", op, describe(err))
	}
}

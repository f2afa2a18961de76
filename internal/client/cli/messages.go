package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/client/msgsync"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/filex"
)

// History prints the messages of the open chat.
func (a *App) History(ctx context.Context) error {
	snap, err := a.chatService.Messages(ctx)
	if err != nil {
		a.report(err)
		return err
	}
	if snap.State == msgsync.StateIdle {
		a.report(msgsync.ErrNoOpenChat)
		return msgsync.ErrNoOpenChat
	}
	if len(snap.Messages) == 0 {
		a.printf("No messages yet\n")
		return nil
	}
	me := a.sess.UserID()
	for i, m := range snap.Messages {
		a.printf("%s\n", messageLine(i+1, m, me))
	}
	return nil
}

// messageRef resolves a position in the open chat or a message id.
func (a *App) messageRef(ctx context.Context, ref string) (string, error) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, nil
	}
	snap, err := a.chatService.Messages(ctx)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(snap.Messages) {
		return "", fmt.Errorf("%w: no message number %d", common.ErrNotFound, n)
	}
	return snap.Messages[n-1].ID, nil
}

// Send posts text to the open chat. Without arguments the text is read as
// multiple lines.
func (a *App) Send(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		text, err = ComposeMessage(a.reader, a.out)
		if errors.Is(err, ErrComposeCancelled) {
			a.printf("Cancelled\n")
			return nil
		}
		if err != nil {
			return err
		}
		if text == "" {
			a.printf("Nothing to send\n")
			return nil
		}
	}
	if _, err := a.chatService.Send(ctx, text); err != nil {
		a.report(err)
		return err
	}
	return nil
}

// File sends a file from disk to the open chat.
func (a *App) File(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: file <path>\n")
		return nil
	}
	m, err := a.chatService.SendFile(ctx, strings.Join(args, " "))
	if err != nil {
		a.report(err)
		return err
	}
	a.printf("Sent %s\n", m.Attachment.FileName)
	return nil
}

// Edit replaces the text of one of the user's messages.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.printf("Usage: edit <number|id> <text>\n")
		return nil
	}
	return a.onMessage(ctx, args[0], func(id string) error {
		return a.chatService.Edit(ctx, id, strings.Join(args[1:], " "))
	})
}

// Delete tombstones a message.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: delete <number|id>\n")
		return nil
	}
	return a.onMessage(ctx, args[0], func(id string) error {
		return a.chatService.Delete(ctx, id)
	})
}

// Retry sends a failed message again.
func (a *App) Retry(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: retry <number|id>\n")
		return nil
	}
	return a.onMessage(ctx, args[0], func(id string) error {
		return a.chatService.Retry(ctx, id)
	})
}

func (a *App) onMessage(ctx context.Context, ref string, fn func(id string) error) error {
	id, err := a.messageRef(ctx, ref)
	if err == nil {
		err = fn(id)
	}
	if err != nil {
		a.report(err)
		return err
	}
	return nil
}

// Download saves a message's attachment, by default into the downloads
// folder of the data directory.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: download <number|id> [destination]\n")
		return nil
	}
	var dest string
	if len(args) > 1 {
		dest = strings.Join(args[1:], " ")
	} else {
		dir, err := filex.EnsureDir(a.dataDir, "downloads")
		if err != nil {
			a.report(err)
			return err
		}
		dest = dir
	}

	return a.onMessage(ctx, args[0], func(id string) error {
		path, err := a.chatService.Download(ctx, id, dest)
		if err != nil {
			return err
		}
		a.printf("Saved to %s\n", filepath.Clean(path))
		return nil
	})
}

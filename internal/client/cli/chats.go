package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/common"
)

// Chats prints the chat list, most recent activity first.
func (a *App) Chats(ctx context.Context) error {
	chats, err := a.chatService.Chats(ctx)
	if err != nil {
		a.report(err)
		return err
	}
	a.showChats(chats)
	return nil
}

// Filter prints the chats whose name or last message contains the query.
func (a *App) Filter(ctx context.Context, args []string) error {
	chats, err := a.chatService.Filter(ctx, strings.Join(args, " "))
	if err != nil {
		a.report(err)
		return err
	}
	a.showChats(chats)
	return nil
}

func (a *App) showChats(chats []models.Chat) {
	a.lastChats = chats
	if len(chats) == 0 {
		a.printf("No chats\n")
		return
	}
	for i, c := range chats {
		a.printf("%s\n", chatLine(i+1, c))
	}
}

// chatRef resolves a number from the last listing or a chat id.
func (a *App) chatRef(ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(a.lastChats) {
			return "", fmt.Errorf("%w: no chat number %d in the last listing", common.ErrNotFound, n)
		}
		return a.lastChats[n-1].ID, nil
	}
	return ref, nil
}

// userByName finds a user by exact username, ignoring case.
func (a *App) userByName(ctx context.Context, username string) (models.User, error) {
	users, err := a.authService.SearchUsers(ctx, username)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("%w: user %s", common.ErrNotFound, username)
}

// Private opens the private chat with a user, creating it if needed.
func (a *App) Private(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: chat <username>\n")
		return nil
	}
	peer, err := a.userByName(ctx, args[0])
	if err != nil {
		a.report(err)
		return err
	}
	c, err := a.chatService.OpenPrivate(ctx, peer.ID)
	if err != nil {
		a.report(err)
		return err
	}
	return a.enter(ctx, c.ID)
}

// Group creates a group chat with the named users.
func (a *App) Group(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.printf("Usage: group <name> <username>...\n")
		return nil
	}
	ids := make([]string, 0, len(args)-1)
	for _, name := range args[1:] {
		u, err := a.userByName(ctx, name)
		if err != nil {
			a.report(err)
			return err
		}
		ids = append(ids, u.ID)
	}
	c, err := a.chatService.CreateGroup(ctx, args[0], ids)
	if err != nil {
		a.report(err)
		return err
	}
	a.printf("Group %s created\n", c.Name)
	return a.enter(ctx, c.ID)
}

// Open makes a chat from the list the current one.
func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: open <number|chat id>\n")
		return nil
	}
	id, err := a.chatRef(args[0])
	if err != nil {
		a.report(err)
		return err
	}
	return a.enter(ctx, id)
}

func (a *App) enter(ctx context.Context, chatID string) error {
	if err := a.chatService.OpenChat(ctx, chatID); err != nil {
		a.report(err)
		return err
	}
	c, err := a.chatService.Chats(ctx)
	if err == nil {
		for _, chat := range c {
			if chat.ID == chatID {
				a.printf("== %s ==\n", chat.Name)
			}
		}
	}
	if line, err := a.chatService.PeerPresence(ctx, chatID); err == nil {
		a.printf("%s\n", line)
	}
	return a.History(ctx)
}

// Leave closes the current chat.
func (a *App) Leave(ctx context.Context) error {
	if err := a.chatService.CloseChat(ctx); err != nil {
		a.report(err)
		return err
	}
	return nil
}

// RemoveChat deletes a chat for every participant.
func (a *App) RemoveChat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: rmchat <number|chat id>\n")
		return nil
	}
	id, err := a.chatRef(args[0])
	if err != nil {
		a.report(err)
		return err
	}
	if err := a.chatService.DeleteChat(ctx, id); err != nil {
		a.report(err)
		return err
	}
	a.printf("Chat deleted\n")
	return nil
}

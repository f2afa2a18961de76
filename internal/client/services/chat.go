package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/chatsync/internal/client/chatid"
	"github.com/dmitrijs2005/chatsync/internal/client/files"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/msgsync"
	"github.com/dmitrijs2005/chatsync/internal/client/presence"
	"github.com/dmitrijs2005/chatsync/internal/client/roster"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
)

// ChatService defines the chat operations for the CLI.
//
// Contract:
//   - LoadChats: load the roster and start watching chat changes.
//   - OpenPrivate / CreateGroup: resolve or create a chat and add it to the
//     roster.
//   - OpenChat: make a chat active and stream its messages; CloseChat
//     releases it.
//   - Send, SendFile, Edit, Delete, Retry: optimistic message operations on
//     the open chat.
//   - Download: fetch the attachment of a message in the open chat.
//   - DeleteChat: remove a chat everywhere, closing it first when open.
type ChatService interface {
	LoadChats(ctx context.Context) error
	Chats(ctx context.Context) ([]models.Chat, error)
	Filter(ctx context.Context, query string) ([]models.Chat, error)

	OpenPrivate(ctx context.Context, peerID string) (models.Chat, error)
	CreateGroup(ctx context.Context, name string, participantIDs []string) (models.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error

	OpenChat(ctx context.Context, chatID string) error
	CloseChat(ctx context.Context) error
	Messages(ctx context.Context) (msgsync.Snapshot, error)

	Send(ctx context.Context, content string) (models.Message, error)
	SendFile(ctx context.Context, path string) (models.Message, error)
	Edit(ctx context.Context, messageID, content string) error
	Delete(ctx context.Context, messageID string) error
	Retry(ctx context.Context, messageID string) error
	Download(ctx context.Context, messageID, dest string) (string, error)

	PeerPresence(ctx context.Context, chatID string) (string, error)
	Shutdown(ctx context.Context)
}

// ChatDeps bundles the components a ChatService drives.
type ChatDeps struct {
	Store      remote.Store
	Session    *session.Session
	Roster     *roster.Roster
	Resolver   *chatid.Resolver
	Engine     *msgsync.Engine
	Attacher   files.Attacher
	Downloader *files.Downloader
}

type chatService struct {
	ChatDeps
	log logging.Logger
}

func NewChatService(deps ChatDeps, log logging.Logger) ChatService {
	return &chatService{ChatDeps: deps, log: log.With("component", "chats")}
}

func (s *chatService) LoadChats(ctx context.Context) error {
	if err := s.Roster.Load(ctx); err != nil {
		return err
	}
	if err := s.Roster.Watch(ctx); err != nil {
		s.log.Warn(ctx, "chat updates unavailable", "error", err)
	}
	return nil
}

func (s *chatService) Chats(ctx context.Context) ([]models.Chat, error) {
	return s.Roster.Chats(ctx)
}

func (s *chatService) Filter(ctx context.Context, query string) ([]models.Chat, error) {
	return s.Roster.Filter(ctx, query)
}

func (s *chatService) OpenPrivate(ctx context.Context, peerID string) (models.Chat, error) {
	if _, err := s.Session.Require(); err != nil {
		return models.Chat{}, err
	}
	var peer models.User
	found, err := remote.GetJSON(ctx, s.Store, remote.UserPath(peerID), &peer)
	if err != nil {
		return models.Chat{}, fmt.Errorf("load user: %w", err)
	}
	if !found {
		return models.Chat{}, fmt.Errorf("%w: user %s", common.ErrNotFound, peerID)
	}
	if peer.ID == "" {
		peer.ID = peerID
	}

	chat, err := s.Resolver.OpenPrivate(ctx, peer)
	if err != nil {
		return models.Chat{}, err
	}
	if err := s.Roster.Add(ctx, chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (s *chatService) CreateGroup(ctx context.Context, name string, participantIDs []string) (models.Chat, error) {
	chat, err := s.Resolver.CreateGroup(ctx, strings.TrimSpace(name), participantIDs)
	if err != nil {
		return models.Chat{}, err
	}
	if err := s.Roster.Add(ctx, chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (s *chatService) DeleteChat(ctx context.Context, chatID string) error {
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.Roster.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	if snap.ChatID == chatID {
		return s.CloseChat(ctx)
	}
	return nil
}

func (s *chatService) OpenChat(ctx context.Context, chatID string) error {
	if _, err := s.Roster.Chat(ctx, chatID); err != nil {
		return err
	}
	if err := s.Roster.SetActive(ctx, chatID); err != nil {
		return err
	}
	if err := s.Engine.OpenChat(ctx, chatID); err != nil {
		_ = s.Roster.SetActive(ctx, "")
		return err
	}
	return nil
}

func (s *chatService) CloseChat(ctx context.Context) error {
	if err := s.Engine.Close(ctx); err != nil {
		return err
	}
	return s.Roster.SetActive(ctx, "")
}

func (s *chatService) Messages(ctx context.Context) (msgsync.Snapshot, error) {
	return s.Engine.Snapshot(ctx)
}

func (s *chatService) Send(ctx context.Context, content string) (models.Message, error) {
	return s.Engine.Send(ctx, content)
}

func (s *chatService) SendFile(ctx context.Context, path string) (models.Message, error) {
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		return models.Message{}, err
	}
	if snap.State == msgsync.StateIdle {
		return models.Message{}, msgsync.ErrNoOpenChat
	}
	if s.Attacher == nil {
		return models.Message{}, fmt.Errorf("%w: file sharing is not configured", common.ErrInvalidOperation)
	}

	att, err := s.Attacher.Attach(ctx, snap.ChatID, path)
	if err != nil {
		return models.Message{}, fmt.Errorf("attach %s: %w", path, err)
	}
	return s.Engine.SendAttachment(ctx, att)
}

func (s *chatService) Edit(ctx context.Context, messageID, content string) error {
	return s.Engine.Edit(ctx, messageID, content)
}

func (s *chatService) Delete(ctx context.Context, messageID string) error {
	return s.Engine.Delete(ctx, messageID)
}

func (s *chatService) Retry(ctx context.Context, messageID string) error {
	return s.Engine.Retry(ctx, messageID)
}

func (s *chatService) Download(ctx context.Context, messageID, dest string) (string, error) {
	m, err := s.Engine.Message(ctx, messageID)
	if err != nil {
		return "", err
	}
	if m.Attachment == nil || m.IsDeleted {
		return "", fmt.Errorf("%w: message %s has no attachment", common.ErrInvalidOperation, messageID)
	}
	if s.Downloader == nil {
		return "", fmt.Errorf("%w: downloads are not configured", common.ErrInvalidOperation)
	}
	return s.Downloader.Download(ctx, *m.Attachment, dest)
}

// PeerPresence returns the presence line of the other member of a private
// chat. Group chats report their member count.
func (s *chatService) PeerPresence(ctx context.Context, chatID string) (string, error) {
	me, err := s.Session.Require()
	if err != nil {
		return "", err
	}
	chat, err := s.Roster.Chat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat.Type == models.ChatGroup {
		return fmt.Sprintf("%d members", len(chat.Participants)), nil
	}

	for _, p := range chat.Participants {
		if p == me.ID {
			continue
		}
		var peer models.User
		found, err := remote.GetJSON(ctx, s.Store, remote.UserPath(p), &peer)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("%w: user %s", common.ErrNotFound, p)
		}
		return presence.FormatUser(peer), nil
	}
	return "", fmt.Errorf("%w: chat %s has no peer", common.ErrNotFound, chatID)
}

// Shutdown closes the open chat and the roster watch, then waits for
// writes still in flight.
func (s *chatService) Shutdown(ctx context.Context) {
	err := errors.Join(s.Engine.Close(ctx), s.Roster.Stop(ctx))
	if err != nil {
		s.log.Debug(ctx, "shutdown", "error", err)
	}
	s.Engine.Wait()
}

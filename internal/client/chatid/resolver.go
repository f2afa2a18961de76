// Package chatid derives chat identifiers and creates chats without
// duplicating private conversations.
package chatid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/client/userchats"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/google/uuid"
)

const (
	privatePrefix = "private"
	separator     = "_"
)

// ResolveID returns the deterministic id of the private chat between a and
// b: the two ids sorted and joined behind a fixed prefix.
func ResolveID(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: empty participant id", common.ErrInvalidOperation)
	}
	if a == b {
		return "", fmt.Errorf("%w: chat with yourself", common.ErrInvalidOperation)
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return privatePrefix + separator + strings.Join(ids, separator), nil
}

type Resolver struct {
	store   remote.Store
	index   *userchats.Index
	session *session.Session
	log     logging.Logger

	now   func() time.Time
	newID func() string
}

func New(store remote.Store, index *userchats.Index, sess *session.Session, log logging.Logger) *Resolver {
	return &Resolver{
		store:   store,
		index:   index,
		session: sess,
		log:     log.With("component", "chatid"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// OpenPrivate returns the private chat between the current user and peer.
// An existing chat, under the derived id or any legacy id, is reused and
// the current user is re-registered as a member. Otherwise the chat is
// created and both membership indices are updated.
//
// When a membership write fails the chat is not rolled back: it is
// returned together with the error.
func (r *Resolver) OpenPrivate(ctx context.Context, peer models.User) (models.Chat, error) {
	me, err := r.session.Require()
	if err != nil {
		return models.Chat{}, err
	}
	id, err := ResolveID(me.ID, peer.ID)
	if err != nil {
		return models.Chat{}, err
	}

	existing, err := r.findPrivate(ctx, id, me.ID, peer.ID)
	if err != nil {
		return models.Chat{}, err
	}
	if existing != nil {
		r.log.Debug(ctx, "reusing private chat", "chat_id", existing.ID)
		if err := r.index.Add(ctx, me.ID, existing.ID); err != nil {
			return *existing, fmt.Errorf("register membership: %w", err)
		}
		return *existing, nil
	}

	chat := models.Chat{
		ID:           id,
		Name:         peer.Name(),
		Type:         models.ChatPrivate,
		CreatedByID:  me.ID,
		CreatedAt:    r.now(),
		Participants: []string{me.ID, peer.ID},
	}
	if err := r.create(ctx, chat); err != nil {
		if errors.Is(err, common.ErrDuplicateChat) {
			return r.reuseAfterRace(ctx, id, me.ID)
		}
		return models.Chat{}, err
	}
	return chat, r.register(ctx, chat)
}

// CreateGroup creates a group chat with a random id. Participants are
// deduplicated and always include the current user.
func (r *Resolver) CreateGroup(ctx context.Context, name string, participantIDs []string) (models.Chat, error) {
	me, err := r.session.Require()
	if err != nil {
		return models.Chat{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Chat{}, fmt.Errorf("%w: group name is empty", common.ErrInvalidOperation)
	}

	members := []string{me.ID}
	seen := map[string]struct{}{me.ID: {}}
	for _, p := range participantIDs {
		if _, dup := seen[p]; dup || p == "" {
			continue
		}
		seen[p] = struct{}{}
		members = append(members, p)
	}
	if len(members) < 2 {
		return models.Chat{}, fmt.Errorf("%w: a group needs another participant", common.ErrInvalidOperation)
	}

	chat := models.Chat{
		ID:           r.newID(),
		Name:         name,
		Type:         models.ChatGroup,
		CreatedByID:  me.ID,
		CreatedAt:    r.now(),
		Participants: members,
	}
	if err := r.create(ctx, chat); err != nil {
		return models.Chat{}, err
	}
	return chat, r.register(ctx, chat)
}

func (r *Resolver) findPrivate(ctx context.Context, id, a, b string) (*models.Chat, error) {
	var chat models.Chat
	found, err := remote.GetJSON(ctx, r.store, remote.ChatPath(id), &chat)
	if err != nil {
		return nil, fmt.Errorf("look up chat: %w", err)
	}
	if found {
		if chat.ID == "" {
			chat.ID = id
		}
		return &chat, nil
	}

	children, err := r.store.ListChildren(ctx, remote.ChatsPath())
	if err != nil {
		return nil, fmt.Errorf("scan chats: %w", err)
	}
	for _, c := range children {
		var candidate models.Chat
		if err := json.Unmarshal(c.Value, &candidate); err != nil {
			continue
		}
		if candidate.ID == "" {
			candidate.ID = c.Key
		}
		if candidate.IsPrivateBetween(a, b) {
			return &candidate, nil
		}
	}
	return nil, nil
}

// create writes the chat record. A record that appeared under the same id
// since the lookup is reported as common.ErrDuplicateChat.
func (r *Resolver) create(ctx context.Context, chat models.Chat) error {
	if _, err := r.store.Get(ctx, remote.ChatPath(chat.ID)); err == nil {
		return common.ErrDuplicateChat
	} else if !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("create chat: %w", err)
	}
	if err := remote.PutJSON(ctx, r.store, remote.ChatPath(chat.ID), chat); err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	r.log.Info(ctx, "chat created", "chat_id", chat.ID, "type", string(chat.Type))
	return nil
}

func (r *Resolver) reuseAfterRace(ctx context.Context, id, me string) (models.Chat, error) {
	var chat models.Chat
	found, err := remote.GetJSON(ctx, r.store, remote.ChatPath(id), &chat)
	if err != nil {
		return models.Chat{}, err
	}
	if !found {
		return models.Chat{}, common.ErrNotFound
	}
	if err := r.index.Add(ctx, me, id); err != nil {
		return chat, fmt.Errorf("register membership: %w", err)
	}
	return chat, nil
}

func (r *Resolver) register(ctx context.Context, chat models.Chat) error {
	var errs []error
	for _, p := range chat.Participants {
		if err := r.index.Add(ctx, p, chat.ID); err != nil {
			r.log.Warn(ctx, "membership write failed", "chat_id", chat.ID, "user_id", p, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("register membership: %w", errors.Join(errs...))
	}
	return nil
}

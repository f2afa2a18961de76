// Package roster holds the signed-in user's chat list and its filtered view.
//
// The list is owned by the dispatch loop. ApplyLastMessage runs on the loop;
// every other exported method may be called from any goroutine except the
// loop.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/dispatch"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/client/userchats"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
)

type Roster struct {
	store remote.Store
	index *userchats.Index
	loop  *dispatch.Loop
	sess  *session.Session
	log   logging.Logger

	// owned by the loop
	chats    []models.Chat
	view     []models.Chat
	query    string
	active   string
	watchGen uint64
	watch    *remote.Subscription
}

func New(store remote.Store, index *userchats.Index, loop *dispatch.Loop, sess *session.Session, log logging.Logger) *Roster {
	return &Roster{
		store: store,
		index: index,
		loop:  loop,
		sess:  sess,
		log:   log.With("component", "roster"),
	}
}

// Load replaces the list with the user's chats. The userChats index is
// tried first; when it is absent, empty or malformed every chat is scanned
// for membership and the index is rewritten.
func (r *Roster) Load(ctx context.Context) error {
	me, err := r.sess.Require()
	if err != nil {
		return err
	}

	chats, err := r.fetch(ctx, me.ID)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	sortChats(chats)

	return r.loop.Do(ctx, func() {
		unread := make(map[string]int, len(r.chats))
		for _, c := range r.chats {
			unread[c.ID] = c.UnreadCount
		}
		for i := range chats {
			chats[i].UnreadCount = unread[chats[i].ID]
		}
		r.chats = chats
		r.refresh()
	})
}

func (r *Roster) fetch(ctx context.Context, userID string) ([]models.Chat, error) {
	ids, shape, err := r.index.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		r.log.Info(ctx, "chat index unusable, scanning chats", "user_id", userID, "shape", shape)
		return r.scan(ctx, userID)
	}

	chats := make([]models.Chat, 0, len(ids))
	for _, id := range ids {
		raw, err := r.store.Get(ctx, remote.ChatPath(id))
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c, err := decodeChat(id, raw)
		if err != nil {
			r.log.Warn(ctx, "skipping undecodable chat", "chat_id", id, "error", err)
			continue
		}
		chats = append(chats, c)
	}

	if shape != userchats.ShapeList || len(chats) != len(ids) {
		kept := make([]string, len(chats))
		for i, c := range chats {
			kept[i] = c.ID
		}
		r.index.Heal(ctx, userID, kept)
	}
	return chats, nil
}

func (r *Roster) scan(ctx context.Context, userID string) ([]models.Chat, error) {
	children, err := r.store.ListChildren(ctx, remote.ChatsPath())
	if err != nil {
		return nil, err
	}

	var chats []models.Chat
	for _, child := range children {
		c, err := decodeChat(child.Key, child.Value)
		if err != nil {
			r.log.Warn(ctx, "skipping undecodable chat", "chat_id", child.Key, "error", err)
			continue
		}
		if c.HasParticipant(userID) {
			chats = append(chats, c)
		}
	}

	if len(chats) > 0 {
		ids := make([]string, len(chats))
		for i, c := range chats {
			ids[i] = c.ID
		}
		r.index.Heal(ctx, userID, ids)
	}
	return chats, nil
}

func decodeChat(key string, raw json.RawMessage) (models.Chat, error) {
	var c models.Chat
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.Chat{}, err
	}
	if c.ID == "" {
		c.ID = key
	}
	return c, nil
}

func activity(c models.Chat) time.Time {
	if c.LastMessage != nil && c.LastMessage.CreatedAt.After(c.CreatedAt) {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// sortChats orders chats by latest activity, newest first.
func sortChats(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		ai, aj := activity(chats[i]), activity(chats[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return chats[i].ID < chats[j].ID
	})
}

func matches(c models.Chat, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), query) {
		return true
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.DisplayContent()), query)
}

// refresh recomputes the filtered view from scratch.
func (r *Roster) refresh() {
	r.view = r.view[:0]
	for _, c := range r.chats {
		if matches(c, r.query) {
			r.view = append(r.view, c)
		}
	}
}

func cloneAll(chats []models.Chat) []models.Chat {
	out := make([]models.Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}

// Filter sets the query and returns the matching chats. Matching is a
// case-insensitive substring test on the name and last message.
func (r *Roster) Filter(ctx context.Context, query string) ([]models.Chat, error) {
	var out []models.Chat
	err := r.loop.Do(ctx, func() {
		r.query = strings.ToLower(strings.TrimSpace(query))
		r.refresh()
		out = cloneAll(r.view)
	})
	return out, err
}

// Chats returns the filtered view.
func (r *Roster) Chats(ctx context.Context) ([]models.Chat, error) {
	var out []models.Chat
	err := r.loop.Do(ctx, func() { out = cloneAll(r.view) })
	return out, err
}

// Chat returns one chat from the full list.
func (r *Roster) Chat(ctx context.Context, chatID string) (models.Chat, error) {
	var c models.Chat
	found := false
	if err := r.loop.Do(ctx, func() {
		if i := r.indexOf(chatID); i >= 0 {
			c, found = r.chats[i].Clone(), true
		}
	}); err != nil {
		return models.Chat{}, err
	}
	if !found {
		return models.Chat{}, common.ErrNotFound
	}
	return c, nil
}

func (r *Roster) indexOf(chatID string) int {
	return slices.IndexFunc(r.chats, func(c models.Chat) bool { return c.ID == chatID })
}

// ApplyLastMessage replaces the chat's last-message snapshot unless m is
// older than the current one. A new message with unread set bumps the
// counter of chats other than the active one. It must run on the loop.
func (r *Roster) ApplyLastMessage(chatID string, m models.Message, unread bool) {
	i := r.indexOf(chatID)
	if i < 0 {
		return
	}
	c := &r.chats[i]
	if c.LastMessage != nil && c.LastMessage.ID != m.ID && m.CreatedAt.Before(c.LastMessage.CreatedAt) {
		return
	}

	fresh := c.LastMessage == nil || c.LastMessage.ID != m.ID
	m = m.Clone()
	c.LastMessage = &m
	if unread && fresh && chatID != r.active {
		c.UnreadCount++
	}
	sortChats(r.chats)
	r.refresh()
}

// UpdateLastMessage is ApplyLastMessage for callers off the loop.
func (r *Roster) UpdateLastMessage(ctx context.Context, chatID string, m models.Message, unread bool) error {
	found := false
	if err := r.loop.Do(ctx, func() {
		if r.indexOf(chatID) >= 0 {
			found = true
			r.ApplyLastMessage(chatID, m, unread)
		}
	}); err != nil {
		return err
	}
	if !found {
		return common.ErrNotFound
	}
	return nil
}

// MarkRead resets the unread counter.
func (r *Roster) MarkRead(ctx context.Context, chatID string) error {
	return r.loop.Do(ctx, func() {
		if i := r.indexOf(chatID); i >= 0 {
			r.chats[i].UnreadCount = 0
			r.refresh()
		}
	})
}

// SetActive marks chatID as the chat on screen and clears its counter.
// An empty id clears the active chat.
func (r *Roster) SetActive(ctx context.Context, chatID string) error {
	return r.loop.Do(ctx, func() {
		r.active = chatID
		if i := r.indexOf(chatID); i >= 0 {
			r.chats[i].UnreadCount = 0
			r.refresh()
		}
	})
}

// Add inserts or replaces c, keeping the local unread counter.
func (r *Roster) Add(ctx context.Context, c models.Chat) error {
	c = c.Clone()
	return r.loop.Do(ctx, func() { r.upsert(c) })
}

func (r *Roster) upsert(c models.Chat) {
	if i := r.indexOf(c.ID); i >= 0 {
		c.UnreadCount = r.chats[i].UnreadCount
		r.chats[i] = c
	} else {
		r.chats = append(r.chats, c)
	}
	sortChats(r.chats)
	r.refresh()
}

func (r *Roster) remove(chatID string) {
	if i := r.indexOf(chatID); i >= 0 {
		r.chats = slices.Delete(r.chats, i, i+1)
		r.refresh()
	}
}

// DeleteChat removes the chat record, its messages and every participant's
// index entry, then drops it from the list. Participants and admins may
// delete. Index failures are reported after the chat itself is gone.
func (r *Roster) DeleteChat(ctx context.Context, chatID string) error {
	me, err := r.sess.Require()
	if err != nil {
		return err
	}

	var c models.Chat
	found, err := remote.GetJSON(ctx, r.store, remote.ChatPath(chatID), &c)
	if err != nil {
		return fmt.Errorf("read chat: %w", err)
	}
	if !found {
		if local, err := r.Chat(ctx, chatID); err == nil {
			c = local
		} else {
			return common.ErrNotFound
		}
	}
	if !c.HasParticipant(me.ID) && !me.IsAdmin {
		return fmt.Errorf("%w: not a member of %s", common.ErrPermissionDenied, chatID)
	}

	if err := r.store.Delete(ctx, remote.ChatPath(chatID)); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	var errs []error
	if err := r.store.Delete(ctx, remote.MessagesPath(chatID)); err != nil {
		errs = append(errs, fmt.Errorf("delete messages: %w", err))
	}
	for _, p := range c.Participants {
		if err := r.index.Remove(ctx, p, chatID); err != nil {
			errs = append(errs, fmt.Errorf("unlink %s: %w", p, err))
		}
	}

	if err := r.loop.Do(ctx, func() { r.remove(chatID) }); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Watch follows remote chat changes: new chats that include the user are
// added, known chats are refreshed, and removed chats are dropped. A new
// last message from someone else counts as unread unless the chat is
// active. Calling Watch again replaces the previous subscription.
func (r *Roster) Watch(ctx context.Context) error {
	if _, err := r.sess.Require(); err != nil {
		return err
	}

	sub, err := r.store.Subscribe(context.WithoutCancel(ctx), remote.ChatsPath())
	if err != nil {
		r.log.Warn(ctx, "chat updates unavailable", "error", err)
		sub = remote.EmptySubscription()
	}

	var gen uint64
	if err := r.loop.Do(ctx, func() {
		if r.watch != nil {
			r.watch.Close()
		}
		r.watchGen++
		gen = r.watchGen
		r.watch = sub
	}); err != nil {
		sub.Close()
		return err
	}

	go func() {
		for ev := range sub.Events() {
			if !r.loop.Post(func() { r.onEvent(gen, ev) }) {
				sub.Close()
				return
			}
		}
	}()
	return nil
}

// Stop ends Watch and forgets the list.
func (r *Roster) Stop(ctx context.Context) error {
	return r.loop.Do(ctx, func() {
		if r.watch != nil {
			r.watch.Close()
			r.watch = nil
		}
		r.watchGen++
		r.chats = nil
		r.view = nil
		r.query = ""
		r.active = ""
	})
}

func (r *Roster) onEvent(gen uint64, ev remote.Event) {
	if gen != r.watchGen {
		return
	}
	if ev.Kind == remote.EventDelete {
		r.remove(ev.Key)
		return
	}

	c, err := decodeChat(ev.Key, ev.Value)
	if err != nil {
		r.log.Warn(context.Background(), "ignoring undecodable chat", "chat_id", ev.Key, "error", err)
		return
	}

	me := r.sess.UserID()
	if !c.HasParticipant(me) {
		r.remove(c.ID)
		return
	}

	i := r.indexOf(c.ID)
	if i < 0 {
		if c.LastMessage != nil && c.LastMessage.SenderID != me && c.ID != r.active {
			c.UnreadCount = 1
		}
		r.chats = append(r.chats, c)
		sortChats(r.chats)
		r.refresh()
		return
	}

	prev := r.chats[i]
	last := c.LastMessage
	c.LastMessage = prev.LastMessage
	c.UnreadCount = prev.UnreadCount
	r.chats[i] = c
	if last != nil {
		r.ApplyLastMessage(c.ID, *last, last.SenderID != me)
		return
	}
	sortChats(r.chats)
	r.refresh()
}

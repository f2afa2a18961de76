// Package msgsync keeps the ordered message list of the open chat in step
// with the remote store. Local sends, edits and deletes are applied at once
// and confirmed or rolled back when the remote write completes; inbound
// events are merged into the same list.
//
// All list state is owned by the dispatch loop. Exported methods may be
// called from any goroutine except the loop itself.
package msgsync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/dispatch"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/client/session"
	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 50
	DefaultTimeout      = 15 * time.Second
)

var (
	ErrNoOpenChat = fmt.Errorf("%w: no chat is open", common.ErrInvalidOperation)
	ErrSending    = fmt.Errorf("%w: message is still sending", common.ErrInvalidOperation)
)

// State is the lifecycle of the engine's chat subscription.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Op names an optimistic operation in failure notices.
type Op string

const (
	OpSend   Op = "send"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Notifier receives user-visible side effects. Methods run on the dispatch
// loop and must not block.
type Notifier interface {
	MessageReceived(chatID string, m models.Message)
	OperationFailed(op Op, chatID, messageID string, err error)
}

// LastMessageSink receives the chat's new last message after a confirmed
// send or a received message. ApplyLastMessage runs on the dispatch loop.
type LastMessageSink interface {
	ApplyLastMessage(chatID string, m models.Message, unread bool)
}

type Options struct {
	// HistoryLimit bounds the messages loaded by OpenChat.
	HistoryLimit int
	// Timeout bounds every remote write.
	Timeout  time.Duration
	Notifier Notifier
	Sink     LastMessageSink
}

// Snapshot is a copy of the engine state.
type Snapshot struct {
	State    State
	ChatID   string
	Messages []models.Message
}

type Engine struct {
	store        remote.Store
	loop         *dispatch.Loop
	sess         *session.Session
	log          logging.Logger
	historyLimit int
	timeout      time.Duration
	notifier     Notifier
	sink         LastMessageSink
	now          func() time.Time
	newID        func() string

	inflight sync.WaitGroup

	// owned by the loop
	gen      uint64
	state    State
	chatID   string
	sub      *remote.Subscription
	messages []models.Message
	pending  []remote.Event
}

func New(store remote.Store, loop *dispatch.Loop, sess *session.Session, log logging.Logger, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	return &Engine{
		store:        store,
		loop:         loop,
		sess:         sess,
		log:          log.With("component", "msgsync"),
		historyLimit: opts.HistoryLimit,
		timeout:      opts.Timeout,
		notifier:     opts.Notifier,
		sink:         opts.Sink,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// OpenChat replaces the current chat with chatID: the previous subscription
// is disposed, the list is cleared, the most recent history is loaded and
// live events are applied from then on. A later OpenChat or Close
// supersedes this one even while it is still loading.
func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("%w: empty chat id", common.ErrInvalidOperation)
	}

	// a queued function runs even after Do returned on ctx; the loop calls
	// below wait on owner and check ctx themselves
	owner := context.WithoutCancel(ctx)

	var gen uint64
	if err := e.loop.Do(owner, func() {
		e.reset()
		e.gen++
		gen = e.gen
		e.chatID = chatID
		e.state = StateLoading
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		e.abandon(owner, gen)
		return err
	}

	// subscribe before reading history so that nothing written in between
	// is missed; events are held until the history is in place
	sub, err := e.store.Subscribe(owner, remote.MessagesPath(chatID))
	if err != nil {
		e.log.Warn(ctx, "live updates unavailable", "chat_id", chatID, "error", err)
		sub = remote.EmptySubscription()
	}
	go e.forward(gen, sub)

	history, err := e.loadHistory(ctx, chatID)
	if err != nil {
		sub.Close()
		e.abandon(owner, gen)
		return fmt.Errorf("load history: %w", err)
	}

	current, cancelled := false, false
	if err := e.loop.Do(owner, func() {
		if e.gen != gen {
			return
		}
		if ctx.Err() != nil {
			cancelled = true
			e.reset()
			return
		}
		current = true
		e.sub = sub
		e.messages = history
		e.state = StateSubscribed

		held := e.pending
		e.pending = nil
		for _, ev := range held {
			e.reconcile(ev)
		}
	}); err != nil {
		sub.Close()
		return err
	}
	if cancelled {
		sub.Close()
		return ctx.Err()
	}
	if !current {
		sub.Close()
		e.log.Debug(ctx, "chat open superseded", "chat_id", chatID)
		return nil
	}

	e.log.Debug(ctx, "chat opened", "chat_id", chatID, "messages", len(history))
	return nil
}

// abandon drops an open attempt that is still the current one.
func (e *Engine) abandon(ctx context.Context, gen uint64) {
	_ = e.loop.Do(ctx, func() {
		if e.gen == gen {
			e.reset()
		}
	})
}

// Close disposes the subscription and empties the list.
func (e *Engine) Close(ctx context.Context) error {
	return e.loop.Do(ctx, func() {
		e.reset()
		e.gen++
	})
}

func (e *Engine) reset() {
	if e.sub != nil {
		e.sub.Close()
		e.sub = nil
	}
	e.state = StateIdle
	e.chatID = ""
	e.messages = nil
	e.pending = nil
}

func (e *Engine) loadHistory(ctx context.Context, chatID string) ([]models.Message, error) {
	children, err := e.store.ListChildren(ctx, remote.MessagesPath(chatID))
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(children))
	for _, c := range children {
		m, err := decodeMessage(c.Key, c.Value)
		if err != nil {
			e.log.Warn(ctx, "skipping undecodable message", "chat_id", chatID, "key", c.Key, "error", err)
			continue
		}
		m.ChatID = chatID
		msgs = append(msgs, m)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > e.historyLimit {
		msgs = msgs[len(msgs)-e.historyLimit:]
	}
	return msgs, nil
}

func decodeMessage(key string, raw json.RawMessage) (models.Message, error) {
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Message{}, err
	}
	if m.ID == "" {
		m.ID = key
	}
	return m, nil
}

// forward moves events of one subscription generation onto the loop.
func (e *Engine) forward(gen uint64, sub *remote.Subscription) {
	for ev := range sub.Events() {
		if !e.loop.Post(func() { e.onEvent(gen, ev) }) {
			sub.Close()
			return
		}
	}
	e.loop.Post(func() {
		if e.gen == gen && e.state != StateIdle {
			e.log.Warn(context.Background(), "live updates ended", "chat_id", e.chatID)
		}
	})
}

func (e *Engine) onEvent(gen uint64, ev remote.Event) {
	if gen != e.gen {
		return
	}
	switch e.state {
	case StateLoading:
		e.pending = append(e.pending, ev)
	case StateSubscribed:
		e.reconcile(ev)
	}
}

// reconcile merges one inbound event into the list. It runs on the loop.
func (e *Engine) reconcile(ev remote.Event) {
	switch ev.Kind {
	case remote.EventDelete:
		if i := e.indexOf(ev.Key); i >= 0 {
			e.messages = slices.Delete(e.messages, i, i+1)
		}

	case remote.EventInsertOrUpdate:
		m, err := decodeMessage(ev.Key, ev.Value)
		if err != nil {
			e.log.Warn(context.Background(), "ignoring undecodable event", "chat_id", e.chatID, "key", ev.Key, "error", err)
			return
		}
		if m.ChatID != "" && m.ChatID != e.chatID {
			return
		}
		m.ChatID = e.chatID

		if i := e.indexOf(m.ID); i >= 0 {
			e.messages[i].MergeMutable(m)
			if i == len(e.messages)-1 {
				e.sink.ApplyLastMessage(e.chatID, e.messages[i].Clone(), false)
			}
			return
		}

		// a full window does not grow backwards
		if len(e.messages) >= e.historyLimit && m.CreatedAt.Before(e.messages[0].CreatedAt) {
			return
		}

		e.messages = append(e.messages, m)
		e.sink.ApplyLastMessage(e.chatID, m.Clone(), false)
		if m.SenderID != e.sess.UserID() {
			e.notifier.MessageReceived(e.chatID, m.Clone())
		}
	}
}

func (e *Engine) indexOf(id string) int {
	return slices.IndexFunc(e.messages, func(m models.Message) bool { return m.ID == id })
}

// Send appends a text message with status Sending and persists it in the
// background. The returned copy carries the new message id.
func (e *Engine) Send(ctx context.Context, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, fmt.Errorf("%w: empty message", common.ErrInvalidOperation)
	}
	return e.send(ctx, content, models.MessageText, nil)
}

// SendAttachment sends a message carrying att. The file must already be
// uploaded or shared.
func (e *Engine) SendAttachment(ctx context.Context, att models.FileAttachment) (models.Message, error) {
	if att.FileName == "" || att.URL == "" {
		return models.Message{}, fmt.Errorf("%w: attachment without name or url", common.ErrInvalidOperation)
	}
	return e.send(ctx, models.AttachmentPlaceholder(att.FileName), models.TypeForFile(att.FileName), &att)
}

func (e *Engine) send(ctx context.Context, content string, typ models.MessageType, att *models.FileAttachment) (models.Message, error) {
	me, err := e.sess.Require()
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	var opErr error
	if err := e.loop.Do(ctx, func() {
		if e.state != StateSubscribed {
			opErr = ErrNoOpenChat
			return
		}
		msg = models.Message{
			ID:          e.newID(),
			ChatID:      e.chatID,
			SenderID:    me.ID,
			SenderName:  me.Name(),
			Content:     content,
			MessageType: typ,
			Attachment:  att,
			CreatedAt:   e.now().UTC(),
			Status:      models.MessageSending,
		}
		e.messages = append(e.messages, msg.Clone())
	}); err != nil {
		return models.Message{}, err
	}
	if opErr != nil {
		return models.Message{}, opErr
	}

	e.persistSend(ctx, msg)
	return msg.Clone(), nil
}

// Retry persists a Failed message again under the same id.
func (e *Engine) Retry(ctx context.Context, messageID string) error {
	me, err := e.sess.Require()
	if err != nil {
		return err
	}

	var msg models.Message
	var opErr error
	if err := e.loop.Do(ctx, func() {
		i := e.indexOf(messageID)
		switch {
		case i < 0:
			opErr = common.ErrNotFound
		case e.messages[i].SenderID != me.ID:
			opErr = common.ErrPermissionDenied
		case e.messages[i].Status != models.MessageFailed:
			opErr = fmt.Errorf("%w: only failed messages can be retried", common.ErrInvalidOperation)
		default:
			e.messages[i].Status = models.MessageSending
			msg = e.messages[i].Clone()
		}
	}); err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	e.persistSend(ctx, msg)
	return nil
}

// remoteRecord is the stored form of m. Records are stored as Sent at
// least; Sending and Failed exist only locally.
func remoteRecord(m models.Message) models.Message {
	r := m.Clone()
	if r.Status == models.MessageSending || r.Status == models.MessageFailed || r.Status == "" {
		r.Status = models.MessageSent
	}
	return r
}

// write runs an atomic remote update under the write timeout, detached from
// the caller's cancellation.
func (e *Engine) write(ctx context.Context, values map[string]models.Message) error {
	encoded := make(map[string]json.RawMessage, len(values))
	for p, m := range values {
		raw, err := remote.Encode(m)
		if err != nil {
			return err
		}
		encoded[p] = raw
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	return e.store.Update(wctx, encoded)
}

func (e *Engine) background(fn func()) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		fn()
	}()
}

func (e *Engine) persistSend(ctx context.Context, msg models.Message) {
	rec := remoteRecord(msg)
	e.background(func() {
		err := e.write(ctx, map[string]models.Message{
			remote.MessagePath(msg.ChatID, msg.ID): rec,
			remote.ChatLastMessagePath(msg.ChatID): rec,
		})
		e.loop.Post(func() { e.confirmSend(msg.ChatID, msg.ID, rec, err) })
	})
}

// confirmSend settles a send by message id; the list may have changed
// since the send started.
func (e *Engine) confirmSend(chatID, id string, rec models.Message, err error) {
	i := -1
	if e.chatID == chatID {
		i = e.indexOf(id)
	}

	if err != nil {
		if i >= 0 && e.messages[i].Status.Advances(models.MessageFailed) {
			e.messages[i].Status = models.MessageFailed
		}
		e.log.Warn(context.Background(), "send failed", "chat_id", chatID, "message_id", id, "error", err)
		e.notifier.OperationFailed(OpSend, chatID, id, err)
		return
	}

	if i >= 0 && e.messages[i].Status.Advances(models.MessageSent) {
		e.messages[i].Status = models.MessageSent
	}
	e.sink.ApplyLastMessage(chatID, rec.Clone(), false)
}

// Edit replaces the content of one of the caller's messages.
func (e *Engine) Edit(ctx context.Context, messageID, content string) error {
	me, err := e.sess.Require()
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty message", common.ErrInvalidOperation)
	}

	return e.replace(ctx, OpEdit, messageID, func(prev models.Message) (models.Message, error) {
		switch {
		case prev.SenderID != me.ID:
			return prev, fmt.Errorf("%w: only the sender can edit a message", common.ErrPermissionDenied)
		case prev.IsDeleted:
			return prev, fmt.Errorf("%w: message is deleted", common.ErrInvalidOperation)
		case prev.Status == models.MessageSending:
			return prev, ErrSending
		case prev.Status == models.MessageFailed:
			return prev, fmt.Errorf("%w: retry or delete a failed message", common.ErrInvalidOperation)
		}
		return prev.WithEdit(content, me.ID, e.now()), nil
	})
}

// Delete tombstones a message. The sender and admins may delete.
// Deleting an already deleted message is a no-op.
func (e *Engine) Delete(ctx context.Context, messageID string) error {
	me, err := e.sess.Require()
	if err != nil {
		return err
	}

	return e.replace(ctx, OpDelete, messageID, func(prev models.Message) (models.Message, error) {
		switch {
		case prev.SenderID != me.ID && !me.IsAdmin:
			return prev, fmt.Errorf("%w: only the sender or an admin can delete a message", common.ErrPermissionDenied)
		case prev.IsDeleted:
			return prev, nil
		case prev.Status == models.MessageSending:
			return prev, ErrSending
		}
		return prev.Tombstone(me.ID, e.now()), nil
	})
}

// replace swaps a message for the record built by change, then persists it.
// A failed write restores the previous record if the optimistic one is
// still in place.
func (e *Engine) replace(ctx context.Context, op Op, messageID string, change func(models.Message) (models.Message, error)) error {
	var prev, repl models.Message
	var chatID string
	var last, changed bool
	var opErr error

	if err := e.loop.Do(ctx, func() {
		if e.state != StateSubscribed {
			opErr = ErrNoOpenChat
			return
		}
		i := e.indexOf(messageID)
		if i < 0 {
			opErr = common.ErrNotFound
			return
		}
		prev = e.messages[i].Clone()
		repl, opErr = change(prev)
		if opErr != nil || sameRevision(prev, repl) {
			return
		}
		changed = true
		chatID = e.chatID
		last = i == len(e.messages)-1
		e.messages[i] = repl.Clone()
	}); err != nil {
		return err
	}
	if opErr != nil || !changed {
		return opErr
	}

	rec := remoteRecord(repl)
	values := map[string]models.Message{remote.MessagePath(chatID, messageID): rec}
	if last {
		values[remote.ChatLastMessagePath(chatID)] = rec
	}

	e.background(func() {
		err := e.write(ctx, values)
		e.loop.Post(func() { e.confirmReplace(op, chatID, prev, repl, rec, last, err) })
	})
	return nil
}

func (e *Engine) confirmReplace(op Op, chatID string, prev, repl, rec models.Message, last bool, err error) {
	if err == nil {
		if last {
			e.sink.ApplyLastMessage(chatID, rec.Clone(), false)
		}
		return
	}

	if e.chatID == chatID {
		if i := e.indexOf(prev.ID); i >= 0 && sameRevision(e.messages[i], repl) {
			status := e.messages[i].Status
			e.messages[i] = prev
			e.messages[i].Status = status
		}
	}
	e.log.Warn(context.Background(), string(op)+" failed", "chat_id", chatID, "message_id", prev.ID, "error", err)
	e.notifier.OperationFailed(op, chatID, prev.ID, err)
}

// sameRevision compares the fields an edit or delete changes.
func sameRevision(a, b models.Message) bool {
	return a.Content == b.Content &&
		a.IsEdited == b.IsEdited &&
		a.IsDeleted == b.IsDeleted &&
		a.EditedBy == b.EditedBy &&
		a.DeletedBy == b.DeletedBy &&
		timeEqual(a.EditedAt, b.EditedAt) &&
		timeEqual(a.DeletedAt, b.DeletedAt)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.loop.Do(ctx, func() {
		s.State = e.state
		s.ChatID = e.chatID
		s.Messages = make([]models.Message, len(e.messages))
		for i, m := range e.messages {
			s.Messages[i] = m.Clone()
		}
	})
	return s, err
}

// Messages returns a copy of the list, or nil when the loop has stopped.
func (e *Engine) Messages(ctx context.Context) []models.Message {
	s, err := e.Snapshot(ctx)
	if err != nil {
		return nil
	}
	return s.Messages
}

// Message returns the message with id from the open chat.
func (e *Engine) Message(ctx context.Context, id string) (models.Message, error) {
	var m models.Message
	var found bool
	if err := e.loop.Do(ctx, func() {
		if i := e.indexOf(id); i >= 0 {
			m, found = e.messages[i].Clone(), true
		}
	}); err != nil {
		return models.Message{}, err
	}
	if !found {
		return models.Message{}, common.ErrNotFound
	}
	return m, nil
}

// Wait blocks until every background write has settled.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

type nopNotifier struct{}

func (nopNotifier) MessageReceived(string, models.Message)    {}
func (nopNotifier) OperationFailed(Op, string, string, error) {}

type nopSink struct{}

func (nopSink) ApplyLastMessage(string, models.Message, bool) {}

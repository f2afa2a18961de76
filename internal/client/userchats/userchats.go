// Package userchats maintains the per-user chat index at userChats/{userId}.
// The canonical shape is a JSON list of chat ids; a key-set map is accepted
// on read and rewritten as a list.
package userchats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
)

// Shape is the representation found in the store.
type Shape int

const (
	ShapeAbsent Shape = iota
	ShapeList
	ShapeMap
	ShapeMalformed
)

func (s Shape) String() string {
	switch s {
	case ShapeAbsent:
		return "absent"
	case ShapeList:
		return "list"
	case ShapeMap:
		return "map"
	default:
		return "malformed"
	}
}

// Normalize turns a stored index into an ordered, duplicate-free id list.
// Map keys are taken in sorted order; non-string list items are skipped.
func Normalize(raw json.RawMessage) ([]string, Shape) {
	if remote.IsNull(raw) {
		return nil, ShapeAbsent
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		ids := make([]string, 0, len(list))
		seen := make(map[string]struct{}, len(list))
		for _, item := range list {
			id, ok := item.(string)
			if !ok || id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, ShapeList
	}

	var set map[string]json.RawMessage
	if err := json.Unmarshal(raw, &set); err == nil {
		ids := make([]string, 0, len(set))
		for id := range set {
			if id != "" {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids, ShapeMap
	}

	return nil, ShapeMalformed
}

type Index struct {
	store remote.Store
	log   logging.Logger
}

func New(store remote.Store, log logging.Logger) *Index {
	return &Index{store: store, log: log.With("component", "userchats")}
}

// Read returns the normalized ids of userID's chats and the shape found.
func (x *Index) Read(ctx context.Context, userID string) ([]string, Shape, error) {
	raw, err := x.store.Get(ctx, remote.UserChatsPath(userID))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ShapeAbsent, nil
		}
		return nil, ShapeAbsent, fmt.Errorf("read chat index: %w", err)
	}
	ids, shape := Normalize(raw)
	return ids, shape, nil
}

// Write stores ids as the canonical list.
func (x *Index) Write(ctx context.Context, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	if err := remote.PutJSON(ctx, x.store, remote.UserChatsPath(userID), ids); err != nil {
		return fmt.Errorf("write chat index: %w", err)
	}
	return nil
}

// Add appends chatID to userID's index unless present. A non-canonical
// index is rewritten as a list even when chatID is already there.
func (x *Index) Add(ctx context.Context, userID, chatID string) error {
	ids, shape, err := x.Read(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == chatID {
			if shape == ShapeMap {
				return x.Write(ctx, userID, ids)
			}
			return nil
		}
	}
	return x.Write(ctx, userID, append(ids, chatID))
}

// Remove drops chatID from userID's index.
func (x *Index) Remove(ctx context.Context, userID, chatID string) error {
	ids, shape, err := x.Read(ctx, userID)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != chatID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) && shape != ShapeMap {
		return nil
	}
	return x.Write(ctx, userID, kept)
}

// Heal rewrites a degraded index in canonical form. Failures are logged.
func (x *Index) Heal(ctx context.Context, userID string, ids []string) {
	if err := x.Write(ctx, userID, ids); err != nil {
		x.log.Warn(ctx, "chat index self-heal failed", "user_id", userID, "error", err)
		return
	}
	x.log.Info(ctx, "chat index rewritten", "user_id", userID, "chats", len(ids))
}

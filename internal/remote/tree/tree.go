// Package tree implements the JSON-tree semantics shared by the store
// backends: writes replace a node, reads return assembled subtrees, and
// deletes prune parents left empty.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/dmitrijs2005/chatsync/internal/remote"
)

// Tree is a mutable JSON document. The zero value is an empty tree.
// Tree is not safe for concurrent use.
type Tree struct {
	root any
}

// Decode parses raw keeping numbers exact.
func Decode(raw json.RawMessage) (any, error) {
	if remote.IsNull(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// Encode marshals a node back to JSON.
func Encode(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Set replaces the node at path with value. A nil value deletes the node.
// Non-object nodes on the way are replaced by objects.
func (t *Tree) Set(path string, value any) {
	if value == nil {
		t.Delete(path)
		return
	}
	segs := remote.SplitPath(path)
	if len(segs) == 0 {
		t.root = value
		return
	}

	parent, ok := t.root.(map[string]any)
	if !ok {
		parent = map[string]any{}
		t.root = parent
	}
	for _, s := range segs[:len(segs)-1] {
		next, ok := parent[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			parent[s] = next
		}
		parent = next
	}
	parent[segs[len(segs)-1]] = value
}

// SetRaw decodes raw and sets it at path.
func (t *Tree) SetRaw(path string, raw json.RawMessage) error {
	v, err := Decode(raw)
	if err != nil {
		return err
	}
	t.Set(path, v)
	return nil
}

// Get returns the node at path.
func (t *Tree) Get(path string) (any, bool) {
	node := t.root
	for _, s := range remote.SplitPath(path) {
		var ok bool
		node, ok = child(node, s)
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// GetRaw returns the JSON encoding of the node at path.
func (t *Tree) GetRaw(path string) (json.RawMessage, bool, error) {
	v, ok := t.Get(path)
	if !ok {
		return nil, false, nil
	}
	raw, err := Encode(v)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Delete removes the node at path and prunes ancestors that become empty.
func (t *Tree) Delete(path string) {
	segs := remote.SplitPath(path)
	if len(segs) == 0 {
		t.root = nil
		return
	}
	t.root = deleteAt(t.root, segs)
}

// Children returns the sorted child keys of the node at path.
func (t *Tree) Children(path string) []string {
	v, ok := t.Get(path)
	if !ok {
		return nil
	}
	return Keys(v)
}

// Keys returns the sorted keys of an object node, or the indices of a list
// node in order.
func Keys(v any) []string {
	switch n := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k, c := range n {
			if c != nil {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, 0, len(n))
		for i, c := range n {
			if c != nil {
				keys = append(keys, strconv.Itoa(i))
			}
		}
		return keys
	default:
		return nil
	}
}

func child(node any, key string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		c, ok := n[key]
		return c, ok && c != nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) || n[i] == nil {
			return nil, false
		}
		return n[i], true
	default:
		return nil, false
	}
}

func deleteAt(node any, segs []string) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	if len(segs) == 1 {
		delete(m, segs[0])
	} else if next, ok := m[segs[0]]; ok {
		updated := deleteAt(next, segs[1:])
		if updated == nil {
			delete(m, segs[0])
		} else {
			m[segs[0]] = updated
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

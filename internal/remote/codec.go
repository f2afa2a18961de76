package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatsync/internal/common"
)

// Encode marshals v into a record value.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

// PutJSON encodes v and writes it at path.
func PutJSON(ctx context.Context, s Store, path string, v any) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, path, b)
}

// GetJSON reads path into v. found is false when the node is absent.
func GetJSON(ctx context.Context, s Store, path string, v any) (bool, error) {
	raw, err := s.Get(ctx, path)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// IsNull reports whether raw is empty or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	s := string(raw)
	return len(s) == 0 || s == "null"
}

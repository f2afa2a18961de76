package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/chatsync/internal/dbx"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/tree"
)

// Repository stores one row per written path. A node's value is the
// written row overlaid with the rows of its descendants.
type Repository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewRepository(db dbx.DBTX, dialect dbx.Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

type row struct {
	path  string
	value string
}

func (r *Repository) q(query string) string {
	return dbx.Rebind(r.dialect, query)
}

// ancestors returns the proper prefixes of path, shallowest first.
func ancestors(path string) []string {
	segs := remote.SplitPath(path)
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// related loads the rows of path, its ancestors and its descendants.
func (r *Repository) related(ctx context.Context, path string) ([]row, error) {
	var (
		query string
		args  []any
	)
	if path == "" {
		query = `SELECT path, value FROM records`
	} else {
		exact := append(ancestors(path), path)
		prefix := path + "/"
		query = `SELECT path, value FROM records WHERE path IN (` + placeholders(len(exact)) +
			`) OR substr(path, 1, ?) = ?`
		for _, p := range exact {
			args = append(args, p)
		}
		args = append(args, utf8.RuneCountInString(prefix), prefix)
	}

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.path, &rw.value); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Get assembles the node at path. found is false when nothing is stored
// there.
func (r *Repository) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	path = remote.CleanPath(path)
	rows, err := r.related(ctx, path)
	if err != nil {
		return nil, false, err
	}

	byPath := make(map[string]string, len(rows))
	for _, rw := range rows {
		byPath[rw.path] = rw.value
	}

	var t tree.Tree
	for _, p := range remote.SortedByDepth(byPath) {
		if err := t.SetRaw(p, json.RawMessage(byPath[p])); err != nil {
			return nil, false, fmt.Errorf("record %s: %w", p, err)
		}
	}
	return t.GetRaw(path)
}

// Remove deletes path with its descendants and cuts it out of any
// ancestor row that embeds it.
func (r *Repository) Remove(ctx context.Context, path string) error {
	path = remote.CleanPath(path)
	if path == "" {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	}

	prefix := path + "/"
	_, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM records WHERE path = ? OR substr(path, 1, ?) = ?`),
		path, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return r.stripAncestors(ctx, path)
}

func (r *Repository) stripAncestors(ctx context.Context, path string) error {
	anc := ancestors(path)
	if len(anc) == 0 {
		return nil
	}

	args := make([]any, len(anc))
	for i, p := range anc {
		args[i] = p
	}
	rows, err := r.db.QueryContext(ctx,
		r.q(`SELECT path, value FROM records WHERE path IN (`+placeholders(len(anc))+`)`), args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	var found []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.path, &rw.value); err != nil {
			rows.Close()
			return fmt.Errorf("db error: %w", err)
		}
		found = append(found, rw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, rw := range found {
		v, err := tree.Decode(json.RawMessage(rw.value))
		if err != nil {
			return fmt.Errorf("record %s: %w", rw.path, err)
		}
		// A scalar ancestor is replaced by the object that now lives below it.
		if _, isObject := v.(map[string]any); !isObject {
			if err := r.deleteRow(ctx, rw.path); err != nil {
				return err
			}
			continue
		}

		var t tree.Tree
		t.Set("", v)
		t.Delete(strings.TrimPrefix(path, rw.path+"/"))
		rest, ok, err := t.GetRaw("")
		if err != nil {
			return err
		}
		if !ok {
			if err := r.deleteRow(ctx, rw.path); err != nil {
				return err
			}
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			r.q(`UPDATE records SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE path = ?`),
			string(rest), rw.path); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *Repository) deleteRow(ctx context.Context, path string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM records WHERE path = ?`), path); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Write replaces the node at path. A null value only removes it.
func (r *Repository) Write(ctx context.Context, path string, value json.RawMessage) error {
	path = remote.CleanPath(path)
	if err := r.Remove(ctx, path); err != nil {
		return err
	}
	if remote.IsNull(value) {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO records (path, value) VALUES (?, ?)`), path, string(value))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

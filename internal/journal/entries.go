package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded change.
type Entry struct {
	Seq        int64
	ID         string
	Store      string
	Op         string // "merge" or "delete"
	Body       string
	Source     string
	RecordedAt time.Time
}

// Append writes an entry to the journal. An empty ID is replaced with a
// UUIDv7. Appending an ID that already exists is a no-op.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.Op != "merge" && e.Op != "delete" {
		return fmt.Errorf("append: unsupported op %q", e.Op)
	}
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("append: generate id: %w", err)
		}
		e.ID = id.String()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO changes (id, store, op, body, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Store, e.Op, e.Body, e.Source, e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append %s: %w", e.ID, err)
	}
	return nil
}

// Record appends a change of the named store. It lets a Journal serve as
// the change sink of a store.
func (j *Journal) Record(store, op, source string, body []byte) error {
	return j.Append(context.Background(), Entry{
		Store:  store,
		Op:     op,
		Body:   string(body),
		Source: source,
	})
}

// Entries returns the entries of a store ordered by seq. An empty store
// name returns the entries of every store.
func (j *Journal) Entries(ctx context.Context, store string) ([]Entry, error) {
	var out []Entry
	err := j.Replay(ctx, store, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replay calls fn for every entry of a store in seq order and stops at the
// first error fn returns.
func (j *Journal) Replay(ctx context.Context, store string, fn func(Entry) error) error {
	query := `
		SELECT seq, id, store, op, body, source, recorded_at
		FROM changes
		ORDER BY seq ASC
	`
	args := []any{}
	if store != "" {
		query = `
			SELECT seq, id, store, op, body, source, recorded_at
			FROM changes
			WHERE store = ?
			ORDER BY seq ASC
		`
		args = append(args, store)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entries: %w", err)
	}
	return nil
}

// Stores returns the distinct store names in the journal, sorted.
func (j *Journal) Stores(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT store FROM changes ORDER BY store COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return out, nil
}

// Count returns the number of entries of a store, or of all stores when
// store is empty.
func (j *Journal) Count(ctx context.Context, store string) (int, error) {
	var n int
	var err error
	if store == "" {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes`).Scan(&n)
	} else {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes WHERE store = ?`, store).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var at string
	if err := rows.Scan(&e.Seq, &e.ID, &e.Store, &e.Op, &e.Body, &e.Source, &at); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at of %s: %w", e.ID, err)
	}
	e.RecordedAt = t
	return e, nil
}

// Package itemdb mirrors the item store into a SQLite (or libsql) database.
package itemdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	devenv "github.com/mmry-org/mmry-plugins/dev/env"
	"github.com/mmry-org/mmry-plugins/lib/mmry"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

func isRemote(dsn string) bool {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

// OpenDB opens a database and applies the schema. Remote urls (libsql://, https://)
// go through the libsql driver, anything else is a local sqlite file which may
// start with <dev_state>.
func OpenDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, wrapOpenDB(fmt.Errorf("a path was not specified"))
	}

	var db *sql.DB
	if isRemote(dsn) {
		var err error
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	} else {
		path, err := devenv.ResolvePath(dsn)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		if path != ":memory:" {
			err = os.MkdirAll(filepath.Dir(path), 0777)
			if err != nil {
				return nil, wrapOpenDB(err)
			}
		}

		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
		// see this stackoverflow post for information on why the following
		// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		db.SetMaxOpenConns(1)
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpenDB(err)
		}
	}

	_, err := db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(fmt.Errorf("apply schema: %w", err))
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

const upsertItem = `insert into items (
    id, external_id, collection, content, created_at, updated_at, href, urls, images, metadata, exported_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (id) do update set
    external_id = excluded.external_id,
    collection = excluded.collection,
    content = excluded.content,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    href = excluded.href,
    urls = excluded.urls,
    images = excluded.images,
    metadata = excluded.metadata,
    exported_at = excluded.exported_at`

func encodeJSON(value any, empty string) (string, error) {
	if value == nil {
		return empty, nil
	}
	contents, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(contents) == "null" {
		return empty, nil
	}
	return string(contents), nil
}

// Upsert writes every item in a single transaction, keyed by the item's file id.
func (s Store) Upsert(ctx context.Context, now time.Time, items []mmry.StoredItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertItem)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, stored := range items {
		item := stored.Item
		urls, err := encodeJSON(item.URLs, "[]")
		if err != nil {
			return fmt.Errorf("item %s: %w", stored.ID, err)
		}
		images, err := encodeJSON(item.Images, "[]")
		if err != nil {
			return fmt.Errorf("item %s: %w", stored.ID, err)
		}
		metadata, err := encodeJSON(item.Metadata, "{}")
		if err != nil {
			return fmt.Errorf("item %s: %w", stored.ID, err)
		}

		_, err = stmt.ExecContext(
			ctx,
			stored.ID,
			nullable(item.ExternalID),
			nullable(item.Collection),
			item.Content,
			nullable(item.CreatedAt),
			nullable(item.UpdatedAt),
			nullable(item.Href),
			urls,
			images,
			metadata,
			now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("item %s: %w", stored.ID, err)
		}
	}

	return tx.Commit()
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

type Row struct {
	ID         string
	ExternalID string
	Collection string
	Content    string
}

// List returns every exported item ordered by id.
func (s Store) List(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"select id, coalesce(external_id, ''), coalesce(collection, ''), content from items order by id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		err := rows.Scan(&row.ID, &row.ExternalID, &row.Collection, &row.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "select count(*) from items").Scan(&count)
	return count, err
}

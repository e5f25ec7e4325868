// Package sqlstore implements memory.Store on top of database/sql. It is
// shared by the sqlite and postgres stores, which differ only in driver,
// placeholder style and schema types.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/relay/pkg/memory"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	// Name is the dialect name, used in error messages.
	Name string

	// SerialPrimaryKey is the column definition of an auto-incrementing
	// primary key.
	SerialPrimaryKey string

	// NumberedPlaceholders switches "?" placeholders to "$1, $2, ...".
	NumberedPlaceholders bool
}

var (
	// SQLite is the dialect for github.com/mattn/go-sqlite3.
	SQLite = Dialect{
		Name:             "sqlite",
		SerialPrimaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}

	// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
	Postgres = Dialect{
		Name:                 "postgres",
		SerialPrimaryKey:     "BIGSERIAL PRIMARY KEY",
		NumberedPlaceholders: true,
	}
)

// Store implements memory.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
	}

	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			core TEXT NOT NULL DEFAULT '',
			default_mode TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			seq ` + s.dialect.SerialPrimaryKey + `,
			persona_id TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			layer TEXT NOT NULL,
			entry_id TEXT NOT NULL DEFAULT '',
			fact_key TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_scope
			ON memory_entries (persona_id, client_id, layer, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts "?" placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ReadPersona loads a persona profile.
func (s *Store) ReadPersona(ctx context.Context, personaID string) (*memory.Persona, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, core, default_mode FROM personas WHERE id = ?`),
		personaID,
	)

	var (
		p    memory.Persona
		mode string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Core, &mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.NotFoundError{PersonaID: personaID}
		}
		return nil, fmt.Errorf("%w: reading persona: %v", memory.ErrStore, err)
	}
	p.DefaultMode = memory.Mode(mode)

	return &p, nil
}

// WritePersona creates or replaces a persona profile.
func (s *Store) WritePersona(ctx context.Context, persona *memory.Persona) error {
	if persona == nil || persona.ID == "" {
		return fmt.Errorf("%w: persona id is required", memory.ErrInvalidMutation)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM personas WHERE id = ?`), persona.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO personas (id, name, core, default_mode) VALUES (?, ?, ?, ?)`),
			persona.ID, persona.Name, persona.Core, string(persona.DefaultMode),
		)
		return err
	})
}

// ReadLayer returns a layer's entries in insertion order.
func (s *Store) ReadLayer(ctx context.Context, personaID, clientID string, layer memory.Layer) ([]memory.Entry, error) {
	if !layer.Valid() {
		return nil, fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT entry_id, fact_key, role, content, created_at
			FROM memory_entries
			WHERE persona_id = ? AND client_id = ? AND layer = ?
			ORDER BY seq ASC`),
		personaID, memory.ScopeClient(layer, clientID), string(layer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s layer: %v", memory.ErrStore, layer, err)
	}
	defer rows.Close()

	entries := []memory.Entry{}
	for rows.Next() {
		var (
			e       memory.Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Key, &e.Role, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("%w: scanning %s layer: %v", memory.ErrStore, layer, err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s layer: %v", memory.ErrStore, layer, err)
	}

	return entries, nil
}

// AppendEntry appends an entry to a layer.
func (s *Store) AppendEntry(ctx context.Context, personaID, clientID string, layer memory.Layer, entry memory.Entry) error {
	if !layer.Valid() {
		return fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	if err := s.insert(ctx, s.db, personaID, clientID, layer, entry); err != nil {
		return fmt.Errorf("%w: appending to %s layer: %v", memory.ErrStore, layer, err)
	}
	return nil
}

// UpsertFact replaces any fact with the same key and appends the new value,
// keeping the layer ordered by recency.
func (s *Store) UpsertFact(ctx context.Context, personaID, clientID, key, value string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.rebind(`DELETE FROM memory_entries
				WHERE persona_id = ? AND client_id = ? AND layer = ? AND fact_key = ?`),
			personaID, clientID, string(memory.LayerClientFacts), key,
		)
		if err != nil {
			return err
		}

		return s.insert(ctx, tx, personaID, clientID, memory.LayerClientFacts, memory.Entry{
			ID:      key,
			Key:     key,
			Content: value,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: upserting fact: %v", memory.ErrStore, err)
	}
	return nil
}

// ReplaceLayer rewrites a layer in one transaction. The canonical layer is
// append-only.
func (s *Store) ReplaceLayer(ctx context.Context, personaID, clientID string, layer memory.Layer, entries []memory.Entry) error {
	if layer == memory.LayerCanonical {
		return memory.ErrImmutableLayer
	}
	if !layer.Valid() {
		return fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.rebind(`DELETE FROM memory_entries WHERE persona_id = ? AND client_id = ? AND layer = ?`),
			personaID, memory.ScopeClient(layer, clientID), string(layer),
		)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if err := s.insert(ctx, tx, personaID, clientID, layer, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replacing %s layer: %v", memory.ErrStore, layer, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", memory.ErrStore, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, personaID, clientID string, layer memory.Layer, e memory.Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := ex.ExecContext(ctx,
		s.rebind(`INSERT INTO memory_entries
			(persona_id, client_id, layer, entry_id, fact_key, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		personaID, memory.ScopeClient(layer, clientID), string(layer),
		e.ID, e.Key, e.Role, e.Content, created.UnixNano(),
	)
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Package wpstate persists constant-propagation's whole-program state
// across runs, so an interprocedural analysis can
// warm-start from a prior run's field/return summaries instead of
// recomputing Phase 1/2 from nothing every time. Driver selection follows
// blank-importing every driver the module supports and picking one by
// the connection string's scheme prefix.
package wpstate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"dexopt/internal/constprop"
	"dexopt/internal/domain"
	"dexopt/internal/ir"
)

// driverFor maps a DSN's scheme prefix to the registered database/sql
// driver name. sqlite uses modernc.org/sqlite (a pure-Go driver) rather
// than a cgo-based sqlite driver, so the cache works in a cross-compiled
// build without a C toolchain; see DESIGN.md.
func driverFor(dsn string) (driver, rest string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlserver://"):
		return "sqlserver", dsn, nil
	default:
		return "", "", fmt.Errorf("wpstate: unrecognized store DSN scheme: %s", dsn)
	}
}

// Store is the cache of whole-program constant-propagation summaries,
// keyed by analysis run so two concurrent runs against the same backing
// database never blend each other's in-flight values.
type Store struct {
	db *sql.DB
}

// Open opens (and, if needed, migrates) the store backing dsn. The DSN's
// scheme prefix picks the driver; everything after it is passed through
// to database/sql.Open verbatim (minus the prefix for sqlite, whose
// driver expects a bare file path or ":memory:").
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("wpstate: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("wpstate: ping %s: %w", driver, err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS wpstate_summary (
	run_id TEXT NOT NULL,
	kind   TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  INTEGER NOT NULL,
	PRIMARY KEY (run_id, kind, key)
)`)
	if err != nil {
		return fmt.Errorf("wpstate: migrate: %w", err)
	}
	return nil
}

// Save persists every summary in w that resolved to an exact constant.
// Non-exact (Top/Bottom/sign-only) summaries aren't worth a row: they
// carry no information a future run could warm-start from that it
// wouldn't already start with.
func (s *Store) Save(ctx context.Context, runID string, w *constprop.WholeProgramState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("wpstate: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO wpstate_summary (run_id, kind, key, value) VALUES (?, ?, ?, ?)
ON CONFLICT (run_id, kind, key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("wpstate: prepare: %w", err)
	}
	defer stmt.Close()

	for f, v := range w.FieldSummaries() {
		exact, ok := v.AsExact()
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, runID, "field", fieldKey(f), exact); err != nil {
			return fmt.Errorf("wpstate: save field %s: %w", fieldKey(f), err)
		}
	}
	for key, v := range w.ReturnSummaries() {
		exact, ok := v.AsExact()
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, runID, "return", key, exact); err != nil {
			return fmt.Errorf("wpstate: save return %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Load reads every summary saved under runID back into a fresh
// WholeProgramState, ready to seed BuildPhase1/BuildPhase2's input.
func (s *Store) Load(ctx context.Context, runID string) (*constprop.WholeProgramState, error) {
	w := constprop.NewWholeProgramState()
	rows, err := s.db.QueryContext(ctx, `SELECT kind, key, value FROM wpstate_summary WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("wpstate: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, key string
		var value int64
		if err := rows.Scan(&kind, &key, &value); err != nil {
			return nil, fmt.Errorf("wpstate: scan: %w", err)
		}
		switch kind {
		case "field":
			f, ok := parseFieldKey(key)
			if !ok {
				continue
			}
			w.SeedField(f, domain.SignedConstantExact(value))
		case "return":
			w.SeedReturn(key, domain.SignedConstantExact(value))
		}
	}
	return w, rows.Err()
}

func fieldKey(f ir.FieldRef) string {
	return string(f.Class) + "." + f.Name + ":" + string(f.Type)
}

// parseFieldKey inverts fieldKey. Field/type names can't themselves
// contain ".", ":" or ";" in the Dalvik descriptor grammar, so splitting
// on the first "." and last ":" is unambiguous.
func parseFieldKey(key string) (ir.FieldRef, bool) {
	dot := strings.Index(key, ".")
	colon := strings.LastIndex(key, ":")
	if dot < 0 || colon < 0 || colon < dot {
		return ir.FieldRef{}, false
	}
	return ir.FieldRef{
		Class: ir.TypeRef(key[:dot]),
		Name:  key[dot+1 : colon],
		Type:  ir.TypeRef(key[colon+1:]),
	}, true
}

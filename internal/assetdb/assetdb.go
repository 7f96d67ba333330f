// Package assetdb stores a bundle manifest and an asset dependency graph in a
// SQLite file, and serves both back to the scanner.
//
// Tables:
//   - bundles(bundle, pos, asset): declarations in declared order.
//   - assets(path, size): footprints; size is NULL when unknown.
//   - deps(src, dst): one-hop references.
package assetdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"bundle-dupscan/internal/depgraph"
	"bundle-dupscan/internal/manifest"
)

// ErrNoSize is returned by Size for assets stored without a footprint.
var ErrNoSize = errors.New("assetdb: no size recorded")

// DB is an open asset database.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// OpenReadOnly opens an existing database without creating or migrating it.
// A missing file is an error wrapping fs.ErrNotExist.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Init ensures the tables exist.
func Init(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bundles (
			bundle TEXT NOT NULL,
			pos INTEGER NOT NULL,
			asset TEXT NOT NULL,
			PRIMARY KEY (bundle, pos)
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			path TEXT PRIMARY KEY,
			size INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS deps (
			src TEXT NOT NULL,
			dst TEXT NOT NULL,
			PRIMARY KEY (src, dst)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// Import replaces the database contents with m and g in one transaction.
func (d *DB) Import(ctx context.Context, m manifest.Manifest, g *depgraph.Graph) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"bundles", "assets", "deps"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, b := range m.Bundles {
		for i, a := range b.Assets {
			if _, err = tx.ExecContext(ctx, `INSERT INTO bundles(bundle, pos, asset) VALUES(?,?,?)`, b.Name, i, a); err != nil {
				return fmt.Errorf("insert bundle %s: %w", b.Name, err)
			}
		}
	}

	sizes := g.Sizes()
	for _, a := range g.Nodes() {
		var size sql.NullInt64
		if n, ok := sizes[a]; ok {
			size = sql.NullInt64{Int64: n, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO assets(path, size) VALUES(?,?)`, a, size); err != nil {
			return fmt.Errorf("insert asset %s: %w", a, err)
		}
	}

	edges := g.Edges()
	for _, e := range edges {
		if _, err = tx.ExecContext(ctx, `INSERT INTO deps(src, dst) VALUES(?,?)`, e[0], e[1]); err != nil {
			return fmt.Errorf("insert dep %s -> %s: %w", e[0], e[1], err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	log.Info().
		Int("bundles", len(m.Bundles)).
		Int("declared", m.AssetCount()).
		Int("assets", len(sizes)).
		Int("edges", len(edges)).
		Msg("imported asset database")
	return nil
}

// Manifest reads the stored bundle declarations.
func (d *DB) Manifest(ctx context.Context) (manifest.Manifest, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT bundle, asset FROM bundles ORDER BY bundle, pos`)
	if err != nil {
		return manifest.Manifest{}, err
	}
	defer rows.Close()

	bundles := map[string][]string{}
	for rows.Next() {
		var b, a string
		if err := rows.Scan(&b, &a); err != nil {
			return manifest.Manifest{}, err
		}
		bundles[b] = append(bundles[b], a)
	}
	if err := rows.Err(); err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.New(bundles), nil
}

// Dependencies returns the direct references of asset, sorted.
func (d *DB) Dependencies(ctx context.Context, asset string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT dst FROM deps WHERE src = ? ORDER BY dst`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dst string
		if err := rows.Scan(&dst); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, rows.Err()
}

// Size returns the stored footprint of asset.
func (d *DB) Size(ctx context.Context, asset string) (int64, error) {
	var size sql.NullInt64
	err := d.db.QueryRowContext(ctx, `SELECT size FROM assets WHERE path = ?`, asset).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !size.Valid) {
		return 0, fmt.Errorf("%w for %q", ErrNoSize, asset)
	}
	if err != nil {
		return 0, err
	}
	return size.Int64, nil
}

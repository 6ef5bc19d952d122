// Package store keeps imported datasets in PostgreSQL, one JSONB document per source row.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hotspot-map/internal/dataset"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/record"
)

// Store is the database access entry; it implements dataset.Source.
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Fetch returns the rows of kind in import order.
func (s *Store) Fetch(ctx context.Context, k dataset.Kind) ([]record.Raw, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM _map_datasets WHERE kind=$1 ORDER BY seq`, string(k))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []record.Raw
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.UseNumber()
		var r record.Raw
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("%s row: %w", k, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_dataset_fetch", "kind", string(k), "rows", len(out))
	return out, nil
}

// ReplaceKind swaps all rows of kind inside one transaction and records the import.
func (s *Store) ReplaceKind(ctx context.Context, k dataset.Kind, rows []record.Raw) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM _map_datasets WHERE kind=$1`, string(k)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("_map_datasets", "kind", "seq", "doc"))
	if err != nil {
		return err
	}
	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("%s row %d: %w", k, i, err)
		}
		if _, err := stmt.ExecContext(ctx, string(k), i, string(b)); err != nil {
			_ = stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _map_dataset_imports(kind, rows, imported_at) VALUES($1, $2, now())
        ON CONFLICT (kind) DO UPDATE SET rows=EXCLUDED.rows, imported_at=EXCLUDED.imported_at`, string(k), len(rows)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("db_dataset_replaced", "kind", string(k), "rows", len(rows))
	return nil
}

// Import describes the last import of one kind.
type Import struct {
	Kind       dataset.Kind `json:"kind"`
	Rows       int          `json:"rows"`
	ImportedAt time.Time    `json:"importedAt"`
}

// Imports lists the recorded imports, one per kind.
func (s *Store) Imports(ctx context.Context) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, rows, imported_at FROM _map_dataset_imports ORDER BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Import
	for rows.Next() {
		var im Import
		var kind string
		if err := rows.Scan(&kind, &im.Rows, &im.ImportedAt); err != nil {
			return nil, err
		}
		im.Kind = dataset.Kind(kind)
		out = append(out, im)
	}
	return out, rows.Err()
}

var _ dataset.Source = (*Store)(nil)

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/armature-build/armature/internal/platform/db"
)

// Postgres stores documents as JSONB rows keyed by (doc_type, doc_id)
// with a version column for optimistic concurrency. Change notifications
// are fanned out in-process after commit.
//
// Schema:
//
//	CREATE TABLE documents (
//	    doc_type    TEXT NOT NULL,
//	    doc_id      TEXT NOT NULL,
//	    version     BIGINT NOT NULL DEFAULT 1,
//	    data        JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (doc_type, doc_id)
//	);
type Postgres struct {
	pool *pgxpool.Pool
	hub  *hub
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, hub: newHub()}
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, typ, id string) (Document, error) {
	row := p.pool.QueryRow(ctx, `SELECT version, data, created_at, modified_at
FROM documents WHERE doc_type=$1 AND doc_id=$2`, typ, id)
	return scanDocument(row, typ, id)
}

// List implements Store. Eq filters are pushed down as JSONB containment;
// results are ordered by document ID.
func (p *Postgres) List(ctx context.Context, typ string, filter Filter) ([]Document, error) {
	query := `SELECT doc_id, version, data, created_at, modified_at
FROM documents WHERE doc_type=$1`
	args := []any{typ}
	if len(filter.Eq) > 0 {
		contains, err := json.Marshal(filter.Eq)
		if err != nil {
			return nil, fmt.Errorf("docstore: marshal filter: %w", err)
		}
		query += ` AND data @> $2`
		args = append(args, contains)
	}
	query += ` ORDER BY doc_id ASC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			doc Document
			raw []byte
		)
		doc.Type = typ
		if err := rows.Scan(&doc.ID, &doc.Version, &raw, &doc.CreatedAt, &doc.ModifiedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, fmt.Errorf("docstore: decode %s/%s: %w", typ, doc.ID, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create implements Store.
func (p *Postgres) Create(ctx context.Context, typ, id string, data map[string]any) (Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: marshal data: %w", err)
	}
	var doc Document
	doc.Type = typ
	doc.ID = id
	doc.Data = cloneMap(data)
	err = p.pool.QueryRow(ctx, `INSERT INTO documents (doc_type, doc_id, data)
VALUES ($1, $2, $3) RETURNING version, created_at, modified_at`, typ, id, raw).
		Scan(&doc.Version, &doc.CreatedAt, &doc.ModifiedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Document{}, ErrExists
		}
		return Document{}, err
	}
	p.hub.publish(Change{Type: typ, ID: id, Version: doc.Version})
	return doc, nil
}

// Update implements Store. The row is locked for the duration of the
// apply function so the read-modify-write is atomic; an apply error
// rolls the transaction back with no mutation.
func (p *Postgres) Update(ctx context.Context, typ, id string, expected int64, fn ApplyFunc) (Document, error) {
	var doc Document
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT version, data, created_at, modified_at
FROM documents WHERE doc_type=$1 AND doc_id=$2 FOR UPDATE`, typ, id)
		current, err := scanDocument(row, typ, id)
		if err != nil {
			return err
		}
		if expected != AnyVersion && current.Version != expected {
			return ErrVersionConflict
		}

		next, err := fn(cloneMap(current.Data))
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("docstore: marshal data: %w", err)
		}

		if err := tx.QueryRow(ctx, `UPDATE documents
SET data=$3, version=version+1, modified_at=NOW()
WHERE doc_type=$1 AND doc_id=$2
RETURNING version, modified_at`, typ, id, raw).Scan(&current.Version, &current.ModifiedAt); err != nil {
			return err
		}
		current.Data = next
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	p.hub.publish(Change{Type: typ, ID: id, Version: doc.Version})
	return doc, nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, typ, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE doc_type=$1 AND doc_id=$2`, typ, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.hub.publish(Change{Type: typ, ID: id, Deleted: true})
	return nil
}

// Subscribe implements Store.
func (p *Postgres) Subscribe(typ string, fn ChangeHandler) CancelFunc {
	return p.hub.subscribe(typ, fn)
}

func scanDocument(row pgx.Row, typ, id string) (Document, error) {
	var (
		doc Document
		raw []byte
	)
	doc.Type = typ
	doc.ID = id
	if err := row.Scan(&doc.Version, &raw, &doc.CreatedAt, &doc.ModifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("docstore: decode %s/%s: %w", typ, id, err)
	}
	return doc, nil
}

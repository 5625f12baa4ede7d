package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Record is one upserted vector row: the chunk text, its metadata and the
// embedding.
type Record struct {
	ID        string
	Document  string
	Metadata  map[string]any
	Embedding []float32
}

// QueryResult is one KNN hit.
type QueryResult struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64
}

// Options configures a collection on open.
type Options struct {
	Path           string
	Name           string
	Dim            int
	ConstructionEF int
	SearchEF       int
	M              int
}

// Collection wraps a SQLite database holding one named vector collection.
// Reads are concurrent; writes are serialized per batch by SQLite itself.
type Collection struct {
	db   *sql.DB
	name string
	dim  int
}

// Open opens (or creates) the collection at opts.Path and initialises the
// schema including the sqlite-vec virtual table. The HNSW-style tuning
// values are recorded in the collection metadata row.
func Open(opts Options) (*Collection, error) {
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dim)
	}
	if opts.Name == "" {
		opts.Name = "documents"
	}

	dir := filepath.Dir(opts.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", opts.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(opts.Dim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := &Collection{db: db, name: opts.Name, dim: opts.Dim}

	tuning, _ := json.Marshal(map[string]any{
		"hnsw:space":           "cosine",
		"hnsw:construction_ef": opts.ConstructionEF,
		"hnsw:search_ef":       opts.SearchEF,
		"hnsw:M":               opts.M,
	})
	if _, err := db.Exec(`
		INSERT INTO collections (name, dim, tuning) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET tuning = excluded.tuning
	`, opts.Name, opts.Dim, string(tuning)); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording collection metadata: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *Collection) Close() error {
	return c.db.Close()
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Dim returns the configured embedding dimension.
func (c *Collection) Dim() int {
	return c.dim
}

// Upsert inserts or replaces a batch of records atomically.
func (c *Collection) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if len(r.Embedding) != c.dim {
				return fmt.Errorf("record %s: embedding dimension %d, want %d", r.ID, len(r.Embedding), c.dim)
			}
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("record %s: marshaling metadata: %w", r.ID, err)
			}

			// Replace any existing row and its vector before re-inserting so
			// the vec0 rowid stays in sync with the records rowid.
			var oldRid sql.NullInt64
			err = tx.QueryRowContext(ctx, "SELECT rid FROM records WHERE id = ?", r.ID).Scan(&oldRid)
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			if oldRid.Valid {
				if _, err := tx.ExecContext(ctx, "DELETE FROM vec_records WHERE record_id = ?", oldRid.Int64); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE rid = ?", oldRid.Int64); err != nil {
					return err
				}
			}

			res, err := tx.ExecContext(ctx,
				"INSERT INTO records (id, document, metadata) VALUES (?, ?, ?)",
				r.ID, r.Document, string(meta))
			if err != nil {
				return err
			}
			rid, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_records (record_id, embedding) VALUES (?, ?)",
				rid, serializeFloat32(r.Embedding)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query performs a KNN search for the nResults nearest records. where holds
// metadata equality conditions; because the vector scan runs before the
// filter, the scan over-fetches when a filter is present and trims after.
func (c *Collection) Query(ctx context.Context, embedding []float32, nResults int, where map[string]any) ([]QueryResult, error) {
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("query embedding dimension %d, want %d", len(embedding), c.dim)
	}
	if nResults <= 0 {
		nResults = 1
	}

	k := nResults
	if len(where) > 0 {
		k = nResults * 4
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT r.id, r.document, r.metadata, v.distance
		FROM vec_records v
		JOIN records r ON r.rid = v.record_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var qr QueryResult
		var meta string
		if err := rows.Scan(&qr.ID, &qr.Document, &meta, &qr.Distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &qr.Metadata); err != nil {
			return nil, fmt.Errorf("record %s: unmarshaling metadata: %w", qr.ID, err)
		}
		if !matchesWhere(qr.Metadata, where) {
			continue
		}
		results = append(results, qr)
		if len(results) >= nResults {
			break
		}
	}
	return results, rows.Err()
}

// GetWhere returns up to limit records whose metadata matches all equality
// conditions, ordered by id. limit <= 0 means no limit.
func (c *Collection) GetWhere(ctx context.Context, where map[string]any, limit int) ([]Record, error) {
	query, args := selectWhere(where)
	query += " ORDER BY r.id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var meta string
		if err := rows.Scan(&r.ID, &r.Document, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("record %s: unmarshaling metadata: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes all records whose metadata matches the equality conditions.
// An empty where deletes everything. Returns the number of removed records.
func (c *Collection) Delete(ctx context.Context, where map[string]any) (int64, error) {
	var removed int64
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		query, args := selectRidsWhere(where)
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		var rids []int64
		for rows.Next() {
			var rid int64
			if err := rows.Scan(&rid); err != nil {
				rows.Close()
				return err
			}
			rids = append(rids, rid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, rid := range rids {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_records WHERE record_id = ?", rid); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE rid = ?", rid); err != nil {
				return err
			}
		}
		removed = int64(len(rids))
		return nil
	})
	return removed, err
}

// Count returns the number of records in the collection.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// DistinctMetaValues returns the distinct string values of one metadata key
// across all records, skipping rows where the key is absent.
func (c *Collection) DistinctMetaValues(ctx context.Context, key string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT json_extract(metadata, '$.' || ?) AS v
		FROM records
		WHERE v IS NOT NULL
		ORDER BY v
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Optimize rebuilds persistence: reclaims space and refreshes planner stats.
func (c *Collection) Optimize(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

// --- helpers ---

func selectWhere(where map[string]any) (string, []any) {
	query := "SELECT r.id, r.document, r.metadata FROM records r"
	var conds []string
	var args []any
	for k, v := range where {
		conds = append(conds, "json_extract(r.metadata, '$.' || ?) = ?")
		args = append(args, k, v)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

func selectRidsWhere(where map[string]any) (string, []any) {
	query := "SELECT r.rid FROM records r"
	var conds []string
	var args []any
	for k, v := range where {
		conds = append(conds, "json_extract(r.metadata, '$.' || ?) = ?")
		args = append(args, k, v)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

func matchesWhere(meta map[string]any, where map[string]any) bool {
	for k, want := range where {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func (c *Collection) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

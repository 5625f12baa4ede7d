package store

import "fmt"

// schemaSQL returns the DDL for the collection tables. dim controls the
// vec0 virtual table dimension.
func schemaSQL(dim int) string {
	return fmt.Sprintf(`
-- Named collections with their index tuning, recorded for introspection
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    dim INTEGER NOT NULL,
    tuning JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Chunk records: external string id, text, metadata as JSON
CREATE TABLE IF NOT EXISTS records (
    rid INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    document TEXT NOT NULL,
    metadata JSON NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec. KNN distances are cosine so that
-- similarity = 1 - distance holds downstream.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_records USING vec0(
    record_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

CREATE INDEX IF NOT EXISTS idx_records_id ON records(id);
`, dim)
}

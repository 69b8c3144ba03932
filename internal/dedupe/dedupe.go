// Package dedupe keeps a Postgres ledger of preflighted content, keyed by a
// hash of the bytes so re-uploads of the same file are counted together.
package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"

	"github.com/cespare/xxhash/v2"
)

// Tracker tracks duplicate preflight submissions
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new dedupe tracker
func NewTracker(db *sql.DB) (*Tracker, error) {
	tracker := &Tracker{db: db}

	if err := tracker.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	return tracker, nil
}

// ensureTable creates the preflight_dedupe table if it doesn't exist
func (t *Tracker) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS preflight_dedupe (
			content_hash TEXT PRIMARY KEY,
			content_id TEXT,
			tier TEXT,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	_, err := t.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create preflight_dedupe table: %w", err)
	}

	log.Printf("✓ preflight_dedupe table ready")
	return nil
}

// Record records a preflight of the content with the given hash and returns
// how many times it has now been seen
func (t *Tracker) Record(ctx context.Context, contentHash, contentID, tier string) (int, error) {
	query := `
		INSERT INTO preflight_dedupe (content_hash, content_id, tier, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		ON CONFLICT (content_hash) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = preflight_dedupe.seen_count + 1,
		    content_id = EXCLUDED.content_id,
		    tier = EXCLUDED.tier
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, contentHash, contentID, tier).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}

	return seenCount, nil
}

// SeenCountForContent returns the seen count last recorded for a content ID
func (t *Tracker) SeenCountForContent(ctx context.Context, contentID string) (int, error) {
	query := `
		SELECT seen_count FROM preflight_dedupe
		WHERE content_id = $1
		ORDER BY last_seen_at DESC
		LIMIT 1
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, contentID).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}

// Hasher computes the ledger key while content streams through it
type Hasher struct {
	d *xxhash.Digest
}

// NewHasher creates an empty hasher
func NewHasher() *Hasher {
	return &Hasher{d: xxhash.New()}
}

// Write implements io.Writer
func (h *Hasher) Write(p []byte) (int, error) {
	return h.d.Write(p)
}

// Key returns the hex ledger key of everything written so far
func (h *Hasher) Key() string {
	return fmt.Sprintf("%016x", h.d.Sum64())
}

// Key hashes r to completion
func Key(r io.Reader) (string, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return h.Key(), nil
}

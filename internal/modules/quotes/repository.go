package quotes

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// quoteColumns is the column list for scanning quotes.
// Order must match scanQuote.
const quoteColumns = `id, route_id, source_asset, dest_asset, send_amount, receive_amount, score, graph_version, status, route_json, created_at, expires_at`

// Repository handles quote database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new quote repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "quotes").Logger(),
	}
}

func scanQuote(scanner interface{ Scan(...interface{}) error }) (*Quote, error) {
	var q Quote
	var version, createdAt, expiresAt int64

	if err := scanner.Scan(
		&q.ID, &q.RouteID, &q.Source, &q.Destination,
		&q.SendAmount, &q.ReceiveAmount, &q.Score, &version,
		&q.Status, &q.routeJSON, &createdAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	q.GraphVersion = uint64(version)
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	q.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &q, nil
}

// Create inserts a new quote
func (r *Repository) Create(q *Quote) error {
	_, err := r.db.Exec(
		`INSERT INTO quotes (`+quoteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.RouteID, q.Source, q.Destination,
		q.SendAmount, q.ReceiveAmount, q.Score, int64(q.GraphVersion),
		q.Status, q.routeJSON, q.CreatedAt.Unix(), q.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quote %s: %w", q.ID, err)
	}
	return nil
}

// GetByID returns a quote, or nil if not found
func (r *Repository) GetByID(id string) (*Quote, error) {
	row := r.db.QueryRow("SELECT "+quoteColumns+" FROM quotes WHERE id = ?", id)

	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quote %s: %w", id, err)
	}
	return q, nil
}

// Consume flips an active quote to consumed. Returns false when the
// quote was not active, which makes consumption single-shot under
// concurrent callers.
func (r *Repository) Consume(id string) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE quotes SET status = ? WHERE id = ? AND status = ? AND expires_at > ?`,
		StatusConsumed, id, StatusActive, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume quote %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check consume of quote %s: %w", id, err)
	}
	return affected == 1, nil
}

// ExpireOverdue flips active quotes past their expiry and returns the count
func (r *Repository) ExpireOverdue() (int64, error) {
	res, err := r.db.Exec(
		`UPDATE quotes SET status = ? WHERE status = ? AND expires_at <= ?`,
		StatusExpired, StatusActive, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}
	return res.RowsAffected()
}

// ListRecent returns the most recently created quotes
func (r *Repository) ListRecent(limit int) ([]Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		"SELECT "+quoteColumns+" FROM quotes ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// Count returns the number of stored quotes
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM quotes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quotes: %w", err)
	}
	return n, nil
}

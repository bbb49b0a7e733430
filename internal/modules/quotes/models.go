// Package quotes manages quote lifecycle: a quote freezes one resolved
// route's price for a short window so a caller can act on it. Quotes move
// active → consumed | expired and are single-shot.
package quotes

import (
	"encoding/json"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
)

// Schema for the quotes table (registry.db)
const Schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id             TEXT PRIMARY KEY,
	route_id       TEXT NOT NULL,
	source_asset   TEXT NOT NULL,
	dest_asset     TEXT NOT NULL,
	send_amount    TEXT NOT NULL,
	receive_amount TEXT NOT NULL,
	score          REAL NOT NULL,
	graph_version  INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	route_json     BLOB NOT NULL,
	created_at     INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_status_expires ON quotes(status, expires_at);
`

// Quote statuses
const (
	StatusActive   = "active"
	StatusConsumed = "consumed"
	StatusExpired  = "expired"
)

// Quote is one frozen route price
type Quote struct {
	ID            string    `json:"id"`
	RouteID       string    `json:"route_id"`
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	SendAmount    string    `json:"send_amount"`
	ReceiveAmount string    `json:"receive_amount"`
	Score         float64   `json:"score"`
	GraphVersion  uint64    `json:"graph_version"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`

	// routeJSON is the frozen manifest; decoded on demand by Route()
	routeJSON []byte
}

// Route decodes the frozen route manifest backing this quote
func (q *Quote) Route() (*routing.Route, error) {
	var r routing.Route
	if err := json.Unmarshal(q.routeJSON, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Live reports whether the quote is active and unexpired right now
func (q *Quote) Live(now time.Time) bool {
	return q.Status == StatusActive && now.Before(q.ExpiresAt)
}

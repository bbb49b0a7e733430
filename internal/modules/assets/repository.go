package assets

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// assetColumns is the column list for scanning assets.
// Order must match scanAsset.
const assetColumns = `id, code, issuer, name, home_domain, verified, source,
	num_accounts, deposit_enabled, withdraw_enabled, anchor_domain, active,
	created_at, updated_at`

// Repository handles asset database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assets").Logger(),
	}
}

func scanAsset(scanner interface{ Scan(...interface{}) error }) (*Asset, error) {
	var a Asset
	var verified, deposit, withdraw, active int
	var createdAt, updatedAt int64

	if err := scanner.Scan(
		&a.ID, &a.Code, &a.Issuer, &a.Name, &a.HomeDomain, &verified, &a.Source,
		&a.NumAccounts, &deposit, &withdraw, &a.AnchorDomain, &active,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	a.Verified = verified != 0
	a.DepositEnabled = deposit != 0
	a.WithdrawEnabled = withdraw != 0
	a.Active = active != 0
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}

// Create inserts a new asset and returns its id
func (r *Repository) Create(a *Asset) (int64, error) {
	if a.Source == "" {
		a.Source = SourceNetwork
	}
	now := time.Now().Unix()

	res, err := r.db.Exec(
		`INSERT INTO assets (code, issuer, name, home_domain, verified, source,
		                     num_accounts, deposit_enabled, withdraw_enabled,
		                     anchor_domain, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.Issuer, a.Name, a.HomeDomain, boolToInt(a.Verified), a.Source,
		a.NumAccounts, boolToInt(a.DepositEnabled), boolToInt(a.WithdrawEnabled),
		a.AnchorDomain, boolToInt(a.Active), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert asset %s: %w", a.Key(), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get asset id: %w", err)
	}
	return id, nil
}

// Upsert inserts an asset or updates the existing row with the same
// identity, and returns the stored row
func (r *Repository) Upsert(a *Asset) (*Asset, error) {
	if a.Source == "" {
		a.Source = SourceNetwork
	}
	now := time.Now().Unix()

	_, err := r.db.Exec(
		`INSERT INTO assets (code, issuer, name, home_domain, verified, source,
		                     num_accounts, deposit_enabled, withdraw_enabled,
		                     anchor_domain, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code, issuer) DO UPDATE SET
			name = excluded.name,
			home_domain = excluded.home_domain,
			verified = excluded.verified,
			source = excluded.source,
			num_accounts = excluded.num_accounts,
			deposit_enabled = excluded.deposit_enabled,
			withdraw_enabled = excluded.withdraw_enabled,
			anchor_domain = excluded.anchor_domain,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		a.Code, a.Issuer, a.Name, a.HomeDomain, boolToInt(a.Verified), a.Source,
		a.NumAccounts, boolToInt(a.DepositEnabled), boolToInt(a.WithdrawEnabled),
		a.AnchorDomain, boolToInt(a.Active), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert asset %s: %w", a.Key(), err)
	}

	return r.GetByCodeIssuer(a.Code, a.Issuer)
}

// GetByCodeIssuer returns an asset by its identity, or nil if not found
func (r *Repository) GetByCodeIssuer(code, issuer string) (*Asset, error) {
	row := r.db.QueryRow(
		"SELECT "+assetColumns+" FROM assets WHERE code = ? AND issuer = ?",
		strings.TrimSpace(code), strings.TrimSpace(issuer),
	)

	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil // Asset not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %s: %w", FormatKey(code, issuer), err)
	}
	return a, nil
}

// GetByID returns an asset by id, or nil if not found
func (r *Repository) GetByID(id int64) (*Asset, error) {
	row := r.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE id = ?", id)

	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset id %d: %w", id, err)
	}
	return a, nil
}

// GetAll returns all registered assets ordered by code
func (r *Repository) GetAll() ([]Asset, error) {
	rows, err := r.db.Query("SELECT " + assetColumns + " FROM assets ORDER BY code, issuer")
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// GetAllActive returns the active assets ordered by code. This is the
// routable set the graph builder works from.
func (r *Repository) GetAllActive() ([]Asset, error) {
	rows, err := r.db.Query("SELECT " + assetColumns + " FROM assets WHERE active = 1 ORDER BY code, issuer")
	if err != nil {
		return nil, fmt.Errorf("failed to query active assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// GetVerified returns all verified assets ordered by code
func (r *Repository) GetVerified() ([]Asset, error) {
	rows, err := r.db.Query("SELECT " + assetColumns + " FROM assets WHERE verified = 1 ORDER BY code, issuer")
	if err != nil {
		return nil, fmt.Errorf("failed to query verified assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

func collectAssets(rows *sql.Rows) ([]Asset, error) {
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetVerified updates the verified flag of an asset
func (r *Repository) SetVerified(id int64, verified bool) error {
	res, err := r.db.Exec(
		"UPDATE assets SET verified = ?, updated_at = ? WHERE id = ?",
		boolToInt(verified), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of asset %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", id)
	}
	return nil
}

// SetActive updates the active flag of an asset
func (r *Repository) SetActive(id int64, active bool) error {
	res, err := r.db.Exec(
		"UPDATE assets SET active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of asset %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", id)
	}
	return nil
}

// Count returns the number of registered assets
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM assets").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avendale/tradepost/internal/domain"
)

// RoyaltyStore implements domain.RoyaltyStore using PostgreSQL. The royalties
// table has no update path: attributions are write-once by construction.
type RoyaltyStore struct {
	q Querier
}

// NewRoyaltyStore creates a RoyaltyStore over the given querier.
func NewRoyaltyStore(q Querier) *RoyaltyStore {
	return &RoyaltyStore{q: q}
}

// Create inserts a new attribution. A unit that already has one surfaces
// domain.ErrAlreadyExists.
func (s *RoyaltyStore) Create(ctx context.Context, r domain.RoyaltyAttribution) error {
	const query = `
		INSERT INTO royalties (collection, unit_id, minter, percent, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query,
		addrText(r.Collection), u64Text(r.UnitID), addrText(r.Minter),
		int64(r.Percent), r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create royalty %s: %w", r.Asset(), err)
	}
	return nil
}

// Get retrieves the attribution for one unit.
func (s *RoyaltyStore) Get(ctx context.Context, asset domain.AssetKey) (domain.RoyaltyAttribution, error) {
	row := s.q.QueryRow(ctx,
		`SELECT collection, unit_id, minter, percent, created_at FROM royalties
		 WHERE collection = $1 AND unit_id = $2`,
		addrText(asset.Collection), u64Text(asset.UnitID))

	var r domain.RoyaltyAttribution
	var collection, unitID, minter string
	var percent int64

	err := row.Scan(&collection, &unitID, &minter, &percent, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoyaltyAttribution{}, domain.ErrNotFound
		}
		return domain.RoyaltyAttribution{}, fmt.Errorf("postgres: get royalty %s: %w", asset, err)
	}

	r.Collection = textAddr(collection)
	r.Minter = textAddr(minter)
	r.Percent = uint64(percent)
	if r.UnitID, err = textU64(unitID); err != nil {
		return domain.RoyaltyAttribution{}, fmt.Errorf("postgres: royalty unit_id %q: %w", unitID, err)
	}
	return r, nil
}

var _ domain.RoyaltyStore = (*RoyaltyStore)(nil)

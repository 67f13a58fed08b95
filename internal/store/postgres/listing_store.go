package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avendale/tradepost/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	q Querier
}

// NewListingStore creates a ListingStore over the given querier.
func NewListingStore(q Querier) *ListingStore {
	return &ListingStore{q: q}
}

// Create inserts a new listing. A live row under the same key surfaces
// domain.ErrAlreadyExists.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			collection, unit_id, lister, quantity, price_per_unit,
			earliest_sale_time, exclusive_buyer, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		addrText(l.Collection), u64Text(l.UnitID), addrText(l.Lister),
		u64Text(l.Quantity), u64Text(l.PricePerUnit),
		l.EarliestSaleTime, addrText(l.ExclusiveBuyer),
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create listing %s: %w", l.Asset(), err)
	}
	return nil
}

const listingSelectCols = `collection, unit_id, lister, quantity, price_per_unit,
	earliest_sale_time, exclusive_buyer, created_at, updated_at`

func scanListingFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Listing, error) {
	var l domain.Listing
	var collection, unitID, lister, quantity, price, exclusiveBuyer string

	err := scanner.Scan(
		&collection, &unitID, &lister, &quantity, &price,
		&l.EarliestSaleTime, &exclusiveBuyer, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Collection = textAddr(collection)
	l.Lister = textAddr(lister)
	l.ExclusiveBuyer = textAddr(exclusiveBuyer)
	if l.UnitID, err = textU64(unitID); err != nil {
		return domain.Listing{}, fmt.Errorf("unit_id %q: %w", unitID, err)
	}
	if l.Quantity, err = textU64(quantity); err != nil {
		return domain.Listing{}, fmt.Errorf("quantity %q: %w", quantity, err)
	}
	if l.PricePerUnit, err = textU64(price); err != nil {
		return domain.Listing{}, fmt.Errorf("price_per_unit %q: %w", price, err)
	}
	return l, nil
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingFromRow(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Get retrieves a single listing by key.
func (s *ListingStore) Get(ctx context.Context, key domain.ListingKey) (domain.Listing, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE collection = $1 AND unit_id = $2 AND lister = $3`,
		addrText(key.Collection), u64Text(key.UnitID), addrText(key.Lister))

	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", key.Asset(), err)
	}
	return l, nil
}

// UpdatePrice changes the asking price of an existing listing.
func (s *ListingStore) UpdatePrice(ctx context.Context, key domain.ListingKey, pricePerUnit uint64, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE listings SET price_per_unit = $1, updated_at = $2
		 WHERE collection = $3 AND unit_id = $4 AND lister = $5`,
		u64Text(pricePerUnit), at,
		addrText(key.Collection), u64Text(key.UnitID), addrText(key.Lister))
	if err != nil {
		return fmt.Errorf("postgres: update listing price %s: %w", key.Asset(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a listing; absence surfaces domain.ErrNotFound.
func (s *ListingStore) Delete(ctx context.Context, key domain.ListingKey) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM listings
		 WHERE collection = $1 AND unit_id = $2 AND lister = $3`,
		addrText(key.Collection), u64Text(key.UnitID), addrText(key.Lister))
	if err != nil {
		return fmt.Errorf("postgres: delete listing %s: %w", key.Asset(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUnit returns every listing on one unit.
func (s *ListingStore) ListByUnit(ctx context.Context, asset domain.AssetKey) ([]domain.Listing, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE collection = $1 AND unit_id = $2
		 ORDER BY created_at DESC`,
		addrText(asset.Collection), u64Text(asset.UnitID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by unit: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by unit: %w", err)
	}
	return listings, nil
}

// List returns listings matching the filter with pagination.
func (s *ListingStore) List(ctx context.Context, filter domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Collection != domain.AddressZero {
		query += fmt.Sprintf(" AND collection = $%d", argIdx)
		args = append(args, addrText(filter.Collection))
		argIdx++
	}
	if filter.UnitID != nil {
		query += fmt.Sprintf(" AND unit_id = $%d", argIdx)
		args = append(args, u64Text(*filter.UnitID))
		argIdx++
	}
	if filter.Lister != domain.AddressZero {
		query += fmt.Sprintf(" AND lister = $%d", argIdx)
		args = append(args, addrText(filter.Lister))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings: %w", err)
	}
	return listings, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avendale/tradepost/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	q Querier
}

// NewOfferStore creates an OfferStore over the given querier.
func NewOfferStore(q Querier) *OfferStore {
	return &OfferStore{q: q}
}

// Put inserts or replaces the offer row for its key. Liveness of any row
// being replaced is the engine's concern, not the store's.
func (s *OfferStore) Put(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (
			collection, unit_id, offerer, payment_token,
			quantity, price_per_unit, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (collection, unit_id, offerer) DO UPDATE SET
			payment_token  = EXCLUDED.payment_token,
			quantity       = EXCLUDED.quantity,
			price_per_unit = EXCLUDED.price_per_unit,
			expires_at     = EXCLUDED.expires_at,
			created_at     = EXCLUDED.created_at`

	_, err := s.q.Exec(ctx, query,
		addrText(o.Collection), u64Text(o.UnitID), addrText(o.Offerer),
		addrText(o.PaymentToken), u64Text(o.Quantity), u64Text(o.PricePerUnit),
		o.ExpiresAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put offer %s: %w", o.Asset(), err)
	}
	return nil
}

const offerSelectCols = `collection, unit_id, offerer, payment_token,
	quantity, price_per_unit, expires_at, created_at`

func scanOfferFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Offer, error) {
	var o domain.Offer
	var collection, unitID, offerer, paymentToken, quantity, price string

	err := scanner.Scan(
		&collection, &unitID, &offerer, &paymentToken,
		&quantity, &price, &o.ExpiresAt, &o.CreatedAt,
	)
	if err != nil {
		return domain.Offer{}, err
	}

	o.Collection = textAddr(collection)
	o.Offerer = textAddr(offerer)
	o.PaymentToken = textAddr(paymentToken)
	if o.UnitID, err = textU64(unitID); err != nil {
		return domain.Offer{}, fmt.Errorf("unit_id %q: %w", unitID, err)
	}
	if o.Quantity, err = textU64(quantity); err != nil {
		return domain.Offer{}, fmt.Errorf("quantity %q: %w", quantity, err)
	}
	if o.PricePerUnit, err = textU64(price); err != nil {
		return domain.Offer{}, fmt.Errorf("price_per_unit %q: %w", price, err)
	}
	return o, nil
}

func scanOfferRows(rows pgx.Rows) ([]domain.Offer, error) {
	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOfferFromRow(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// Get retrieves a single offer by key, live or dead.
func (s *OfferStore) Get(ctx context.Context, key domain.OfferKey) (domain.Offer, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+offerSelectCols+` FROM offers
		 WHERE collection = $1 AND unit_id = $2 AND offerer = $3`,
		addrText(key.Collection), u64Text(key.UnitID), addrText(key.Offerer))

	o, err := scanOfferFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w", key.Asset(), err)
	}
	return o, nil
}

// Delete removes an offer; absence surfaces domain.ErrNotFound.
func (s *OfferStore) Delete(ctx context.Context, key domain.OfferKey) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM offers
		 WHERE collection = $1 AND unit_id = $2 AND offerer = $3`,
		addrText(key.Collection), u64Text(key.UnitID), addrText(key.Offerer))
	if err != nil {
		return fmt.Errorf("postgres: delete offer %s: %w", key.Asset(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUnit returns every offer on one unit.
func (s *OfferStore) ListByUnit(ctx context.Context, asset domain.AssetKey) ([]domain.Offer, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+offerSelectCols+` FROM offers
		 WHERE collection = $1 AND unit_id = $2
		 ORDER BY created_at DESC`,
		addrText(asset.Collection), u64Text(asset.UnitID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers by unit: %w", err)
	}
	defer rows.Close()

	offers, err := scanOfferRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan offers by unit: %w", err)
	}
	return offers, nil
}

// List returns offers matching the filter with pagination.
func (s *OfferStore) List(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerSelectCols + ` FROM offers WHERE 1=1`
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
	if filter.Offerer != domain.AddressZero {
		query += fmt.Sprintf(" AND offerer = $%d", argIdx)
		args = append(args, addrText(filter.Offerer))
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
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()

	offers, err := scanOfferRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan offers: %w", err)
	}
	return offers, nil
}

var _ domain.OfferStore = (*OfferStore)(nil)

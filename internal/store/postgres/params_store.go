package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avendale/tradepost/internal/domain"
)

// ParamsStore implements domain.ParamsStore using PostgreSQL. The
// ledger_params table is constrained to a single row.
type ParamsStore struct {
	q Querier
}

// NewParamsStore creates a ParamsStore over the given querier.
func NewParamsStore(q Querier) *ParamsStore {
	return &ParamsStore{q: q}
}

// Get retrieves the parameter singleton; an unseeded ledger surfaces
// domain.ErrNotFound.
func (s *ParamsStore) Get(ctx context.Context) (domain.LedgerParams, error) {
	row := s.q.QueryRow(ctx, `
		SELECT fee_bps, fee_recipient, auction_venue, bundle_venue,
		       asset_factory, private_asset_factory, flagship_collection,
		       updated_at
		FROM ledger_params WHERE singleton`)

	var p domain.LedgerParams
	var feeBps int64
	var feeRecipient, auctionVenue, bundleVenue string
	var assetFactory, privateAssetFactory, flagship string

	err := row.Scan(
		&feeBps, &feeRecipient, &auctionVenue, &bundleVenue,
		&assetFactory, &privateAssetFactory, &flagship, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerParams{}, domain.ErrNotFound
		}
		return domain.LedgerParams{}, fmt.Errorf("postgres: get ledger params: %w", err)
	}

	p.FeeBps = uint64(feeBps)
	p.FeeRecipient = textAddr(feeRecipient)
	p.AuctionVenue = textAddr(auctionVenue)
	p.BundleVenue = textAddr(bundleVenue)
	p.AssetFactory = textAddr(assetFactory)
	p.PrivateAssetFactory = textAddr(privateAssetFactory)
	p.FlagshipCollection = textAddr(flagship)
	return p, nil
}

// Put writes the parameter singleton, creating it on first use.
func (s *ParamsStore) Put(ctx context.Context, p domain.LedgerParams) error {
	const query = `
		INSERT INTO ledger_params (
			singleton, fee_bps, fee_recipient, auction_venue, bundle_venue,
			asset_factory, private_asset_factory, flagship_collection, updated_at
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (singleton) DO UPDATE SET
			fee_bps               = EXCLUDED.fee_bps,
			fee_recipient         = EXCLUDED.fee_recipient,
			auction_venue         = EXCLUDED.auction_venue,
			bundle_venue          = EXCLUDED.bundle_venue,
			asset_factory         = EXCLUDED.asset_factory,
			private_asset_factory = EXCLUDED.private_asset_factory,
			flagship_collection   = EXCLUDED.flagship_collection,
			updated_at            = EXCLUDED.updated_at`

	_, err := s.q.Exec(ctx, query,
		int64(p.FeeBps), addrText(p.FeeRecipient),
		addrText(p.AuctionVenue), addrText(p.BundleVenue),
		addrText(p.AssetFactory), addrText(p.PrivateAssetFactory),
		addrText(p.FlagshipCollection), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put ledger params: %w", err)
	}
	return nil
}

var _ domain.ParamsStore = (*ParamsStore)(nil)

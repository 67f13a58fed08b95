package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avendale/tradepost/internal/domain"
)

// Querier is the subset of pgx operations the stores need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same store code serves
// autocommit reads and transactional settlement writes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the keyed stores over one connection pool and implements
// domain.Store. WithinTx rebinds every store to a single transaction so a
// settlement's deletes and writes commit together or not at all.
type Store struct {
	pool *pgxpool.Pool
	view
}

// view is the store bundle bound to one Querier.
type view struct {
	listings  *ListingStore
	offers    *OfferStore
	royalties *RoyaltyStore
	params    *ParamsStore
	audit     *AuditStore
}

func newView(q Querier) view {
	return view{
		listings:  NewListingStore(q),
		offers:    NewOfferStore(q),
		royalties: NewRoyaltyStore(q),
		params:    NewParamsStore(q),
		audit:     NewAuditStore(q),
	}
}

// Listings returns the listing store.
func (v view) Listings() domain.ListingStore { return v.listings }

// Offers returns the offer store.
func (v view) Offers() domain.OfferStore { return v.offers }

// Royalties returns the royalty store.
func (v view) Royalties() domain.RoyaltyStore { return v.royalties }

// Params returns the ledger params store.
func (v view) Params() domain.ParamsStore { return v.params }

// Audit returns the audit log store.
func (v view) Audit() domain.AuditStore { return v.audit }

// NewStore creates the store bundle backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, view: newView(pool)}
}

// WithinTx runs fn against a transactional view of every store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(newView(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

var _ domain.Store = (*Store)(nil)

// ---------------------------------------------------------------------------
// Column codecs. Addresses are stored as lowercase hex; uint64 identities and
// amounts as decimal TEXT since BIGINT cannot hold the full uint64 range.
// ---------------------------------------------------------------------------

func addrText(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func textAddr(s string) common.Address {
	return common.HexToAddress(s)
}

func u64Text(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func textU64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// isUniqueViolation reports whether err is a primary-key or unique-index
// conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory keyed state store with all-or-nothing transactions.
// ---------------------------------------------------------------------------

type memState struct {
	listings  map[domain.ListingKey]domain.Listing
	offers    map[domain.OfferKey]domain.Offer
	royalties map[domain.AssetKey]domain.RoyaltyAttribution
	params    *domain.LedgerParams
	audit     []domain.AuditEntry
}

func newMemState() *memState {
	return &memState{
		listings:  make(map[domain.ListingKey]domain.Listing),
		offers:    make(map[domain.OfferKey]domain.Offer),
		royalties: make(map[domain.AssetKey]domain.RoyaltyAttribution),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.royalties {
		c.royalties[k] = v
	}
	if s.params != nil {
		p := *s.params
		c.params = &p
	}
	c.audit = append(c.audit, s.audit...)
	return c
}

type memStore struct {
	mu    sync.Mutex
	state *memState

	// failTx, when set, makes the next WithinTx roll back with this error.
	failTx error
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) Listings() domain.ListingStore   { return &memListings{m: m, s: nil} }
func (m *memStore) Offers() domain.OfferStore       { return &memOffers{m: m, s: nil} }
func (m *memStore) Royalties() domain.RoyaltyStore  { return &memRoyalties{m: m, s: nil} }
func (m *memStore) Params() domain.ParamsStore      { return &memParams{m: m, s: nil} }
func (m *memStore) Audit() domain.AuditStore        { return &memAudit{m: m, s: nil} }

func (m *memStore) WithinTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	if m.failTx != nil {
		err := m.failTx
		m.failTx = nil
		return err
	}
	m.state = work
	return nil
}

type memTx struct{ s *memState }

func (t *memTx) Listings() domain.ListingStore  { return &memListings{s: t.s} }
func (t *memTx) Offers() domain.OfferStore      { return &memOffers{s: t.s} }
func (t *memTx) Royalties() domain.RoyaltyStore { return &memRoyalties{s: t.s} }
func (t *memTx) Params() domain.ParamsStore     { return &memParams{s: t.s} }
func (t *memTx) Audit() domain.AuditStore       { return &memAudit{s: t.s} }

// state returns the target state map set, locking the store when the view is
// not transaction-bound. Callers must pair it with done.
func viewState(m *memStore, s *memState) (*memState, func()) {
	if s != nil {
		return s, func() {}
	}
	m.mu.Lock()
	return m.state, m.mu.Unlock
}

type memListings struct {
	m *memStore
	s *memState
}

func (l *memListings) Create(ctx context.Context, v domain.Listing) error {
	s, done := viewState(l.m, l.s)
	defer done()
	if _, ok := s.listings[v.Key()]; ok {
		return domain.ErrAlreadyExists
	}
	s.listings[v.Key()] = v
	return nil
}

func (l *memListings) Get(ctx context.Context, key domain.ListingKey) (domain.Listing, error) {
	s, done := viewState(l.m, l.s)
	defer done()
	v, ok := s.listings[key]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return v, nil
}

func (l *memListings) UpdatePrice(ctx context.Context, key domain.ListingKey, pricePerUnit uint64, at time.Time) error {
	s, done := viewState(l.m, l.s)
	defer done()
	v, ok := s.listings[key]
	if !ok {
		return domain.ErrNotFound
	}
	v.PricePerUnit = pricePerUnit
	v.UpdatedAt = at
	s.listings[key] = v
	return nil
}

func (l *memListings) Delete(ctx context.Context, key domain.ListingKey) error {
	s, done := viewState(l.m, l.s)
	defer done()
	if _, ok := s.listings[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.listings, key)
	return nil
}

func (l *memListings) ListByUnit(ctx context.Context, asset domain.AssetKey) ([]domain.Listing, error) {
	return l.List(ctx, domain.ListingFilter{Collection: asset.Collection, UnitID: &asset.UnitID}, domain.ListOpts{})
}

func (l *memListings) List(ctx context.Context, filter domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	s, done := viewState(l.m, l.s)
	defer done()
	var out []domain.Listing
	for _, v := range s.listings {
		if filter.Collection != domain.AddressZero && v.Collection != filter.Collection {
			continue
		}
		if filter.UnitID != nil && v.UnitID != *filter.UnitID {
			continue
		}
		if filter.Lister != domain.AddressZero && v.Lister != filter.Lister {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memOffers struct {
	m *memStore
	s *memState
}

func (o *memOffers) Put(ctx context.Context, v domain.Offer) error {
	s, done := viewState(o.m, o.s)
	defer done()
	s.offers[v.Key()] = v
	return nil
}

func (o *memOffers) Get(ctx context.Context, key domain.OfferKey) (domain.Offer, error) {
	s, done := viewState(o.m, o.s)
	defer done()
	v, ok := s.offers[key]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return v, nil
}

func (o *memOffers) Delete(ctx context.Context, key domain.OfferKey) error {
	s, done := viewState(o.m, o.s)
	defer done()
	if _, ok := s.offers[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.offers, key)
	return nil
}

func (o *memOffers) ListByUnit(ctx context.Context, asset domain.AssetKey) ([]domain.Offer, error) {
	return o.List(ctx, domain.OfferFilter{Collection: asset.Collection, UnitID: &asset.UnitID}, domain.ListOpts{})
}

func (o *memOffers) List(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error) {
	s, done := viewState(o.m, o.s)
	defer done()
	var out []domain.Offer
	for _, v := range s.offers {
		if filter.Collection != domain.AddressZero && v.Collection != filter.Collection {
			continue
		}
		if filter.UnitID != nil && v.UnitID != *filter.UnitID {
			continue
		}
		if filter.Offerer != domain.AddressZero && v.Offerer != filter.Offerer {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memRoyalties struct {
	m *memStore
	s *memState
}

func (r *memRoyalties) Create(ctx context.Context, v domain.RoyaltyAttribution) error {
	s, done := viewState(r.m, r.s)
	defer done()
	if _, ok := s.royalties[v.Asset()]; ok {
		return domain.ErrAlreadyExists
	}
	s.royalties[v.Asset()] = v
	return nil
}

func (r *memRoyalties) Get(ctx context.Context, asset domain.AssetKey) (domain.RoyaltyAttribution, error) {
	s, done := viewState(r.m, r.s)
	defer done()
	v, ok := s.royalties[asset]
	if !ok {
		return domain.RoyaltyAttribution{}, domain.ErrNotFound
	}
	return v, nil
}

type memParams struct {
	m *memStore
	s *memState
}

func (p *memParams) Get(ctx context.Context) (domain.LedgerParams, error) {
	s, done := viewState(p.m, p.s)
	defer done()
	if s.params == nil {
		return domain.LedgerParams{}, domain.ErrNotFound
	}
	return *s.params, nil
}

func (p *memParams) Put(ctx context.Context, v domain.LedgerParams) error {
	s, done := viewState(p.m, p.s)
	defer done()
	s.params = &v
	return nil
}

type memAudit struct {
	m *memStore
	s *memState
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	s, done := viewState(a.m, a.s)
	defer done()
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        int64(len(s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (a *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s, done := viewState(a.m, a.s)
	defer done()
	out := append([]domain.AuditEntry(nil), s.audit...)
	return out, nil
}

func (a *memAudit) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	s, done := viewState(a.m, a.s)
	defer done()
	var out []domain.AuditEntry
	for _, e := range s.audit {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *memAudit) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s, done := viewState(a.m, a.s)
	defer done()
	var kept []domain.AuditEntry
	var removed int64
	for _, e := range s.audit {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return removed, nil
}

var _ domain.Store = (*memStore)(nil)

// ---------------------------------------------------------------------------
// Ownership oracle fake.
// ---------------------------------------------------------------------------

type assetMove struct {
	collection common.Address
	unitID     uint64
	from, to   common.Address
	quantity   uint64
}

type fakeRegistry struct {
	mu        sync.Mutex
	variants  map[common.Address]domain.AssetVariant
	holdings  map[string]uint64
	approvals map[string]bool
	factories map[string]bool

	moves        []assetMove
	failTransfer error
	failResolve  error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		variants:  make(map[common.Address]domain.AssetVariant),
		holdings:  make(map[string]uint64),
		approvals: make(map[string]bool),
		factories: make(map[string]bool),
	}
}

func holdingKey(collection common.Address, unitID uint64, party common.Address) string {
	return fmt.Sprintf("%s:%d:%s", strings.ToLower(collection.Hex()), unitID, strings.ToLower(party.Hex()))
}

func pairKey(a, b common.Address) string {
	return strings.ToLower(a.Hex()) + ":" + strings.ToLower(b.Hex())
}

func (f *fakeRegistry) setHolding(collection common.Address, unitID uint64, party common.Address, qty uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdings[holdingKey(collection, unitID, party)] = qty
}

func (f *fakeRegistry) approve(collection, party common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals[pairKey(collection, party)] = true
}

func (f *fakeRegistry) ResolveHolding(ctx context.Context, collection common.Address, unitID uint64, party common.Address) (domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResolve != nil {
		return domain.Holding{}, f.failResolve
	}
	variant, ok := f.variants[collection]
	if !ok {
		return domain.Holding{}, domain.ErrUnsupportedAssetKind
	}
	return domain.Holding{Variant: variant, Quantity: f.holdings[holdingKey(collection, unitID, party)]}, nil
}

func (f *fakeRegistry) IsApprovedForEngine(ctx context.Context, collection, party common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approvals[pairKey(collection, party)], nil
}

func (f *fakeRegistry) FromFactory(ctx context.Context, factory, collection common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.factories[pairKey(factory, collection)], nil
}

func (f *fakeRegistry) Transfer(ctx context.Context, collection common.Address, unitID uint64, from, to common.Address, quantity uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer != nil {
		return f.failTransfer
	}
	fromKey := holdingKey(collection, unitID, from)
	if f.holdings[fromKey] < quantity {
		return fmt.Errorf("registry fake: %s holds %d, moving %d", from.Hex(), f.holdings[fromKey], quantity)
	}
	f.holdings[fromKey] -= quantity
	f.holdings[holdingKey(collection, unitID, to)] += quantity
	f.moves = append(f.moves, assetMove{collection: collection, unitID: unitID, from: from, to: to, quantity: quantity})
	return nil
}

var _ domain.AssetRegistry = (*fakeRegistry)(nil)

// ---------------------------------------------------------------------------
// Payment rail fake.
// ---------------------------------------------------------------------------

type payment struct {
	token, from, to common.Address
	amount          uint64
}

type fakeRail struct {
	mu         sync.Mutex
	payments   []payment
	allowances []common.Address // owners that granted allowance

	// failTo rejects transfers to this address when set.
	failTo *common.Address
	// onTransfer runs before each transfer; its error rejects the leg.
	onTransfer func(token, from, to common.Address, amount uint64) error
}

func (f *fakeRail) Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error {
	if f.onTransfer != nil {
		if err := f.onTransfer(token, from, to, amount); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo != nil && *f.failTo == to {
		return fmt.Errorf("rail fake: transfer to %s rejected", to.Hex())
	}
	f.payments = append(f.payments, payment{token: token, from: from, to: to, amount: amount})
	return nil
}

func (f *fakeRail) EnsureAllowance(ctx context.Context, token, owner common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances = append(f.allowances, owner)
	return nil
}

// paidTo sums successful payments to one address.
func (f *fakeRail) paidTo(addr common.Address) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total uint64
	for _, p := range f.payments {
		if p.to == addr {
			total += p.amount
		}
	}
	return total
}

var _ domain.PaymentRail = (*fakeRail)(nil)

// ---------------------------------------------------------------------------
// Venue, lock, bus fakes.
// ---------------------------------------------------------------------------

type fakeAuction struct {
	mu      sync.Mutex
	cancels []domain.AssetKey
	fail    error
}

func (f *fakeAuction) CancelAuctionFor(ctx context.Context, collection common.Address, unitID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.cancels = append(f.cancels, domain.AssetKey{Collection: collection, UnitID: unitID})
	return nil
}

type fakeBundle struct {
	mu    sync.Mutex
	sales []domain.AssetKey
	fail  error
}

func (f *fakeBundle) NotifyItemSold(ctx context.Context, collection common.Address, unitID uint64, quantity uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sales = append(f.sales, domain.AssetKey{Collection: collection, UnitID: unitID})
	return nil
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

var _ domain.LockManager = (*fakeLocks)(nil)

type fakeBus struct {
	mu        sync.Mutex
	streams   map[string][][]byte
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{streams: make(map[string][][]byte), published: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[stream] = append(f.streams[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range f.streams[stream] {
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i), Payload: p})
	}
	return out, nil
}

var _ domain.EventBus = (*fakeBus)(nil)

// lastStreamBody returns the raw body of the most recent stream event, or
// nil when nothing was appended.
func (f *fakeBus) lastStreamBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.streams[EventStream]
	if len(events) == 0 {
		return nil
	}
	var probe struct {
		Body json.RawMessage `json:"body"`
	}
	if err := jsonUnmarshal(events[len(events)-1], &probe); err != nil {
		return nil
	}
	return probe.Body
}

// streamTypes decodes the event types appended to the durable stream, in
// order.
func (f *fakeBus) streamTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.streams[EventStream] {
		var probe struct {
			Type string `json:"type"`
		}
		if err := jsonUnmarshal(p, &probe); err == nil {
			out = append(out, probe.Type)
		}
	}
	return out
}
